// Package word provides the 4-byte register word exchanged with the bus
// device and its decimal text form used on the network.
package word

// On the bus a Word is 4 bytes, most-significant first, and every transfer
// exchanges exactly one Word in each direction.
//
// On the network a Word is its decimal ASCII rendering (a token) with no
// sign and no leading zeros. Message boundaries are provided by the
// transport (see package comm), a token never carries its own delimiter.
