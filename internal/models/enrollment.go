package models

// EnrollmentReport summarises a roster reconciliation.
type EnrollmentReport struct {
	AddedToBatch int      `json:"added_to_batch"`
	NewlyCreated int      `json:"newly_created"`
	Skipped      int      `json:"skipped"`
	Errors       []string `json:"errors"`
}

// BatchImportResult pairs the target batch with the reconciliation report.
type BatchImportResult struct {
	Batch  *Batch           `json:"batch"`
	Report EnrollmentReport `json:"report"`
}

// BatchMembershipResult reports the outcome of an explicit add or remove.
type BatchMembershipResult struct {
	BatchID  string   `json:"batch_id"`
	Affected int      `json:"affected"`
	Ignored  []string `json:"ignored,omitempty"`
}
