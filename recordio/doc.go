// Package recordio implements the frame format used to pack records into
// fixed-size pages. Every frame carries its own header, so records can be
// located without scanning their contents and can contain any bytes.
//
// Frame layout:
//
//	flags   uint8   bit 0 tombstone, bits 1-2 payload compression
//	slot    uint16  bytes reserved for the frame, header included
//	idLen   uint16  followed by idLen bytes of record id
//	dataLen uint16  followed by dataLen bytes of payload
//
// A frame may reserve more bytes than it encodes. Readers walking a page
// advance by slot, which lets a reused hole keep its original extent.
//
// Basic usage:
//
//	var buf bytes.Buffer
//	_, err := recordio.Write(&buf, recordio.Frame{
//	    ID:      "1",
//	    Payload: []byte(`{"id":1}`),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, err := recordio.ReadFrame(&buf)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(f.ID)
package recordio
