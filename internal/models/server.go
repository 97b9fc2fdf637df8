// Package models defines the data types shared by the query/retrieve packages.
package models

import (
	"fmt"
	"strings"
)

// Server describes one configured remote archive node.
// Owned by the server list; the query/retrieve core only reads it.
type Server struct {
	Name           string `yaml:"name" validate:"required"`
	Address        string `yaml:"address" validate:"required,hostname_rfc1123|ip"`
	Port           int    `yaml:"port" validate:"required,min=1,max=65535"`
	CalledAETitle  string `yaml:"ae_title" validate:"required,max=16"`
	CallingAETitle string `yaml:"calling_ae_title,omitempty" validate:"omitempty,max=16"`
	Checked        bool   `yaml:"checked"`

	// DICOMweb transport details. Empty values fall back to defaults.
	Scheme     string `yaml:"scheme,omitempty" validate:"omitempty,oneof=http https"`
	PathPrefix string `yaml:"path_prefix,omitempty"`
}

// String returns a short human-readable form, e.g. "PACS1 (ARCHIVE@10.0.0.5:104)".
func (s Server) String() string {
	return fmt.Sprintf("%s (%s@%s:%d)", s.Name, s.CalledAETitle, s.Address, s.Port)
}

// LocalStorage holds the calling-side parameters used to build retrieve contexts.
type LocalStorage struct {
	CallingAETitle string // Global calling AE title
	StorageAETitle string // Move destination AE title
	StoragePort    int    // Calling port of the local storage node
}

// Filters is the set of study-level search criteria sent with every query.
// Empty fields do not constrain the search.
type Filters struct {
	PatientName      string
	PatientID        string
	AccessionNumber  string
	StudyDescription string
	StudyInstanceUID string
	Modalities       []string
	StudyDateFrom    string // YYYYMMDD
	StudyDateTo      string // YYYYMMDD
}

// StudyDateRange returns the DICOM range matching form of the date filters
// ("from-to", "from-", "-to") or "" when neither bound is set.
func (f Filters) StudyDateRange() string {
	if f.StudyDateFrom == "" && f.StudyDateTo == "" {
		return ""
	}
	if f.StudyDateFrom == f.StudyDateTo {
		return f.StudyDateFrom
	}
	return f.StudyDateFrom + "-" + f.StudyDateTo
}

// IsEmpty reports whether no criterion is set.
func (f Filters) IsEmpty() bool {
	return f.PatientName == "" && f.PatientID == "" && f.AccessionNumber == "" &&
		f.StudyDescription == "" && f.StudyInstanceUID == "" &&
		len(f.Modalities) == 0 && f.StudyDateRange() == ""
}

// String renders the non-empty filters for logging.
func (f Filters) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("patient_name", f.PatientName)
	add("patient_id", f.PatientID)
	add("accession", f.AccessionNumber)
	add("description", f.StudyDescription)
	add("study_uid", f.StudyInstanceUID)
	add("modalities", strings.Join(f.Modalities, "\\"))
	add("study_date", f.StudyDateRange())
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, " ")
}
