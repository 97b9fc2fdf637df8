package models

// Study is one study-level result reported by a server.
type Study struct {
	StudyInstanceUID  string
	PatientID         string
	PatientName       string
	StudyDate         string
	StudyDescription  string
	AccessionNumber   string
	ModalitiesInStudy []string
	NumberOfInstances int
	Server            string // Name of the server that reported the study
}
