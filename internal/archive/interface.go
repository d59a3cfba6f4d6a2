package archive

// Archive defines the contract for the append-only session archive. Batch
// runs store their session summaries and raw responses here for traceability;
// archiving is best-effort and never fails a batch.
type Archive interface {
	Store(name string, data []byte) error
	Retrieve(name string) ([]byte, error)
	List(prefix string) ([]string, error)
}
