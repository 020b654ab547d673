// Package gateway defines the boundary with the messaging platform: the
// membership statuses it reports, the options used to mint invite links,
// and the error type every platform call fails with.
//
// Concrete transports (see package telegram) produce these values; the
// engine packages consume them through small interfaces of their own.
package gateway
