package app

// StagingOperation tracks a CLI operation that may mutate the run database.
// Operations are created in memory with ID=0. Only DB-mutating commands
// persist them (giving them an auto-increment ID from the database).
type StagingOperation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "success", "partial" or "error"
}

// NewStagingOperation creates a new in-memory staging operation.
func NewStagingOperation(operation, parameters string) *StagingOperation {
	return &StagingOperation{
		Operation:  operation,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *StagingOperation) Persisted() bool {
	return op.ID != 0
}
