// Package ncp implements the Node Communication Protocol: a binary
// request/response and publish/subscribe wire protocol for controlling
// and streaming data between CRFS radio-frequency nodes.
//
// Dial produces a client Conn; Server accepts peer connections and hands
// each one to a callback as a Conn. Both sides speak the same framing,
// handshake, and demultiplexing rules — see internal/protocol and
// internal/conn for the codec and connection state machine.
package ncp
