// Package attribution records who invited whom.
//
// Each accepted join becomes one append-only Event keyed by the inviter's
// identity. The invite token is only used to find that identity at join time;
// after that, events follow the inviter, not the link.
package attribution
