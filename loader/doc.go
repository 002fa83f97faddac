// Package loader implements a small byte-oriented protocol for uploading an
// EEPROM image over a serial link.
//
// The sender (S) drives the exchange and the receiver (R), the side with the
// EEPROM attached, acknowledges every step:
//
//	S: length (1..128)       R: ACK
//	S: <length bytes>        R: ACK
//	                         R: (writes the chunk) RDY
//	... repeat ...
//	S: END (0x00)
//
// The receiver answers ERR instead of ACK or RDY when a chunk is not
// received intact or cannot be stored, then stops. Control bytes are
// [CodeAck], [CodeReady], [CodeError], and [CodeEnd].
//
// Reads on the link block. The context passed to [Sender.Send] and
// [Receiver.Receive] is checked between chunks; set a read timeout on the
// underlying link to bound a stalled peer.
package loader
