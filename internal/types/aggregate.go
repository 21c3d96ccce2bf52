package types

import "github.com/google/uuid"

// DefaultSampleName groups documents that were uploaded without a sample.
const DefaultSampleName = "No Sample"

// AttributeEvidence points at one document that was weighed for an
// attribute, with the model's reasoning.
type AttributeEvidence struct {
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentName string    `json:"document_name,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// AttributeAggregate folds one attribute across every evidence document of
// a sample. A single matching document carries the attribute.
type AttributeAggregate struct {
	AttributeName        string              `json:"attribute_name"`
	AttributeDescription string              `json:"attribute_description,omitempty"`
	TestSteps            string              `json:"test_steps,omitempty"`
	Result               bool                `json:"result"`
	MatchedEvidences     []AttributeEvidence `json:"matched_evidences,omitempty"`
	UnmatchedEvidences   []AttributeEvidence `json:"unmatched_evidences,omitempty"`
}

// EvidenceEvaluation is the per-document line of an aggregation. Error is
// filled when the document could not be extracted or compared; failures are
// reported, never aborted on.
type EvidenceEvaluation struct {
	DocumentID   uuid.UUID `json:"document_id"`
	DocumentName string    `json:"document_name,omitempty"`
	FinalResult  *bool     `json:"final_result,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// AggregateResult is the attribute-level outcome of one sample, memoized on
// the execution keyed by sample name. FinalResult is true when no attribute
// is left uncovered.
type AggregateResult struct {
	AttributeResults        []AttributeAggregate `json:"attribute_results"`
	EvidenceResults         []EvidenceEvaluation `json:"evidence_results"`
	TotalAttributes         int                  `json:"total_attributes"`
	TotalAttributesPassed   int                  `json:"total_attributes_passed"`
	TotalAttributesFailed   int                  `json:"total_attributes_failed"`
	TotalEvidences          int                  `json:"total_evidences"`
	TotalEvidencesProcessed int                  `json:"total_evidences_processed"`
	FinalResult             bool                 `json:"final_result"`
}

// ExecutionEvaluation is the outcome of an execution-level sweep over every
// sample.
type ExecutionEvaluation struct {
	ExecutionID uuid.UUID                  `json:"execution_id"`
	Result      string                     `json:"result"`
	Samples     map[string]AggregateResult `json:"samples"`
}
