package models

import (
	"net"
	"strconv"
)

// QueryContext holds everything needed to run one query against one server.
// One exists per server per query run.
type QueryContext struct {
	Server         string
	CallingAETitle string
	CalledAETitle  string
	Host           string
	Port           int
	Scheme         string
	PathPrefix     string
	Filters        Filters

	// StudyUIDs is filled in after a successful query.
	StudyUIDs []string
}

// NewQueryContext builds the context for srv. The server's own calling AE
// title wins over the global one when set.
func NewQueryContext(srv Server, callingAETitle string, filters Filters) *QueryContext {
	calling := callingAETitle
	if srv.CallingAETitle != "" {
		calling = srv.CallingAETitle
	}
	return &QueryContext{
		Server:         srv.Name,
		CallingAETitle: calling,
		CalledAETitle:  srv.CalledAETitle,
		Host:           srv.Address,
		Port:           srv.Port,
		Scheme:         srv.Scheme,
		PathPrefix:     srv.PathPrefix,
		Filters:        filters,
	}
}

// Endpoint returns "host:port", bracketing IPv6 hosts.
func (q *QueryContext) Endpoint() string {
	return net.JoinHostPort(q.Host, strconv.Itoa(q.Port))
}

// RetrieveContext holds the parameters for retrieving one study. Remote
// parameters come from the owning QueryContext, local ones from configuration.
type RetrieveContext struct {
	StudyUID       string
	Server         string
	CallingAETitle string
	CalledAETitle  string
	Host           string
	Port           int
	Scheme         string
	PathPrefix     string

	MoveDestinationAETitle string
	CallingPort            int
}

// NewRetrieveContext merges the owner's connection parameters with local storage.
func NewRetrieveContext(studyUID string, owner *QueryContext, local LocalStorage) *RetrieveContext {
	return &RetrieveContext{
		StudyUID:               studyUID,
		Server:                 owner.Server,
		CallingAETitle:         owner.CallingAETitle,
		CalledAETitle:          owner.CalledAETitle,
		Host:                   owner.Host,
		Port:                   owner.Port,
		Scheme:                 owner.Scheme,
		PathPrefix:             owner.PathPrefix,
		MoveDestinationAETitle: local.StorageAETitle,
		CallingPort:            local.StoragePort,
	}
}

// Endpoint returns "host:port", bracketing IPv6 hosts.
func (r *RetrieveContext) Endpoint() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}
