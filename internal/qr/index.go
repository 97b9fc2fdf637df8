package qr

import "github.com/rescale/rescale-qr/internal/models"

// OwnershipConflict records a study reported by a second server. The later
// server became the owner.
type OwnershipConflict struct {
	StudyUID string
	Previous string
	Current  string
}

// StudyIndex maps study instance UIDs to the query context that reported
// them. Each UID has exactly one owner; a later Record replaces it.
// Iteration follows first-discovery order.
type StudyIndex struct {
	owners    map[string]*models.QueryContext
	order     []string
	conflicts []OwnershipConflict
}

// NewStudyIndex returns an empty index.
func NewStudyIndex() *StudyIndex {
	return &StudyIndex{owners: make(map[string]*models.QueryContext)}
}

// Record sets owner for uid and reports whether a different server owned it.
func (x *StudyIndex) Record(uid string, owner *models.QueryContext) (OwnershipConflict, bool) {
	prev, exists := x.owners[uid]
	x.owners[uid] = owner
	if !exists {
		x.order = append(x.order, uid)
		return OwnershipConflict{}, false
	}
	if prev.Server == owner.Server {
		return OwnershipConflict{}, false
	}
	c := OwnershipConflict{StudyUID: uid, Previous: prev.Server, Current: owner.Server}
	x.conflicts = append(x.conflicts, c)
	return c, true
}

// Owner returns the query context that owns uid.
func (x *StudyIndex) Owner(uid string) (*models.QueryContext, bool) {
	qc, ok := x.owners[uid]
	return qc, ok
}

// UIDs returns all study UIDs in first-discovery order.
func (x *StudyIndex) UIDs() []string {
	out := make([]string, len(x.order))
	copy(out, x.order)
	return out
}

// Len returns the number of distinct studies.
func (x *StudyIndex) Len() int {
	return len(x.order)
}

// Conflicts returns every ownership change in the order they happened.
func (x *StudyIndex) Conflicts() []OwnershipConflict {
	out := make([]OwnershipConflict, len(x.conflicts))
	copy(out, x.conflicts)
	return out
}

// OwnedBy returns the UIDs currently owned by server, in discovery order.
func (x *StudyIndex) OwnedBy(server string) []string {
	var out []string
	for _, uid := range x.order {
		if x.owners[uid].Server == server {
			out = append(out, uid)
		}
	}
	return out
}
