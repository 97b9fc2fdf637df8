package dicomweb

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rescale/rescale-qr/internal/models"
	"github.com/rescale/rescale-qr/internal/util/sanitize"
)

// Study-level attribute tags, in DICOM JSON form.
const (
	tagStudyDate         = "00080020"
	tagAccessionNumber   = "00080050"
	tagModalitiesInStudy = "00080061"
	tagStudyDescription  = "00081030"
	tagPatientName       = "00100010"
	tagPatientID         = "00100020"
	tagStudyInstanceUID  = "0020000D"
	tagNumberOfInstances = "00201208"
)

// attribute is one element of a DICOM JSON dataset.
type attribute struct {
	VR    string            `json:"vr"`
	Value []json.RawMessage `json:"Value,omitempty"`
}

type dataset map[string]attribute

// values returns the element's values as strings. Person names yield their
// alphabetic representation; numbers are formatted as written.
func (d dataset) values(tag string) []string {
	attr, ok := d[tag]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(attr.Value))
	for _, raw := range attr.Value {
		if attr.VR == "PN" {
			var pn struct {
				Alphabetic string `json:"Alphabetic"`
			}
			if err := json.Unmarshal(raw, &pn); err == nil {
				out = append(out, pn.Alphabetic)
				continue
			}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			out = append(out, n.String())
		}
	}
	return out
}

func (d dataset) first(tag string) string {
	if v := d.values(tag); len(v) > 0 {
		return sanitize.Value(v[0])
	}
	return ""
}

func (d dataset) number(tag string) int {
	n, err := strconv.Atoi(d.first(tag))
	if err != nil {
		return 0
	}
	return n
}

// decodeStudies parses a QIDO-RS study response. Entries without a study
// instance UID are skipped and repeated UIDs are reported once.
func decodeStudies(body []byte) ([]models.Study, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var sets []dataset
	if err := json.Unmarshal(body, &sets); err != nil {
		return nil, fmt.Errorf("failed to decode DICOM JSON: %w", err)
	}

	seen := make(map[string]bool, len(sets))
	studies := make([]models.Study, 0, len(sets))
	for _, ds := range sets {
		uid := ds.first(tagStudyInstanceUID)
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		studies = append(studies, models.Study{
			StudyInstanceUID:  uid,
			PatientID:         ds.first(tagPatientID),
			PatientName:       ds.first(tagPatientName),
			StudyDate:         ds.first(tagStudyDate),
			StudyDescription:  ds.first(tagStudyDescription),
			AccessionNumber:   ds.first(tagAccessionNumber),
			ModalitiesInStudy: sanitize.Values(ds.values(tagModalitiesInStudy)),
			NumberOfInstances: ds.number(tagNumberOfInstances),
		})
	}
	return studies, nil
}
