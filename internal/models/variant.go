package models

import (
	"fmt"
	"strings"
)

// SafetyClass describes how dangerous a variant is to write to real hardware.
type SafetyClass string

// Supported safety classifications.
const (
	SafetySafe         SafetyClass = "safe"
	SafetyDestructive  SafetyClass = "destructive"
	SafetyExperimental SafetyClass = "experimental"
)

// ParseSafetyClass returns the canonical SafetyClass for value.
func ParseSafetyClass(value string) (SafetyClass, error) {
	switch SafetyClass(strings.ToLower(strings.TrimSpace(value))) {
	case SafetySafe:
		return SafetySafe, nil
	case SafetyDestructive:
		return SafetyDestructive, nil
	case SafetyExperimental:
		return SafetyExperimental, nil
	default:
		return "", fmt.Errorf("unknown safety classification %q", value)
	}
}

// TestParameters controls a single emulator run.
type TestParameters struct {
	TimeoutSeconds int
	MemoryMB       int
	DiskSizeMB     int
	Snapshot       bool
	Isolated       bool
}

// DefaultDiskSizeMB is the size of the ephemeral test disk.
const DefaultDiskSizeMB = 10

// Variant is a cataloged boot-sector source and its metadata. Values are
// created once from the catalog and never mutated.
type Variant struct {
	ID          string
	DisplayName string
	Description string
	Safety      SafetyClass
	Category    string
	SourceFile  string
	Features    []string
	Warning     string
	Test        TestParameters
}
