package policy

import (
	"encoding/json"
	"fmt"
)

// Version is the bucket-policy dialect version marker written into
// synthesized documents.
const Version = "2023-04-17"

// Document is a bucket policy: a version marker and an ordered statement
// list. Statements stay as raw JSON so that foreign statements - written by
// operators or other tools - round-trip through a merge byte-for-byte.
type Document struct {
	Version   string            `json:"Version"`
	Statement []json.RawMessage `json:"Statement"`
}

// ParseDocument decodes a bucket policy document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse bucket policy: %w", err)
	}
	return &doc, nil
}

// Encode serializes the document for the bucket-policy write call.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize bucket policy: %w", err)
	}
	return data, nil
}

// statementSid extracts the Sid of a raw statement; empty when absent.
func statementSid(raw json.RawMessage) string {
	var probe struct {
		Sid string `json:"Sid"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.Sid
}

// Merge returns a document with stmt replacing any existing statement of
// the same Sid. A nil doc synthesizes an empty document first.
//
// Untouched statements keep their relative order; the merged statement
// always lands last. Statement order carries no authorization semantics,
// only Sid uniqueness matters.
//
// Merge does not serialize concurrent read-modify-write cycles. Callers
// provisioning the same bucket in parallel must apply policies through a
// single writer or a racing merge can drop another writer's statement.
func Merge(doc *Document, stmt Statement) (*Document, error) {
	raw, err := json.Marshal(stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize policy statement: %w", err)
	}

	if doc == nil {
		doc = &Document{Version: Version}
	}

	merged := &Document{
		Version:   doc.Version,
		Statement: make([]json.RawMessage, 0, len(doc.Statement)+1),
	}
	for _, existing := range doc.Statement {
		if statementSid(existing) == stmt.Sid {
			continue
		}
		merged.Statement = append(merged.Statement, existing)
	}
	merged.Statement = append(merged.Statement, raw)

	return merged, nil
}

// Remove returns a document without the statement of the given Sid, and
// whether anything was removed. Foreign statements pass through untouched.
func Remove(doc *Document, sid string) (*Document, bool) {
	if doc == nil {
		// Keep Statement non-nil so an encoded result is always a valid
		// document with an empty statement array, never "Statement":null.
		return &Document{Version: Version, Statement: []json.RawMessage{}}, false
	}

	pruned := &Document{
		Version:   doc.Version,
		Statement: make([]json.RawMessage, 0, len(doc.Statement)),
	}
	removed := false
	for _, existing := range doc.Statement {
		if statementSid(existing) == sid {
			removed = true
			continue
		}
		pruned.Statement = append(pruned.Statement, existing)
	}
	return pruned, removed
}
