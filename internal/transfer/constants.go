package transfer

// ChunkSize is the size of every binary frame except possibly the last.
const ChunkSize = 16 * 1024

// Control message type tags on the wire.
const (
	MessageTypeFileOffer  = "file-offer"
	MessageTypeFileAccept = "file-accept"
	MessageTypeFileReject = "file-reject"
	MessageTypeFileHeader = "file-header"
	MessageTypeFileDone   = "file-done"
)
