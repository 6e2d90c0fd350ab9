// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/dues-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.TxStore. Foreign keys are NOT enforced, which
// lets tests build the inconsistent historical data reporting must survive.
// Uniqueness contracts are enforced exactly like the SQL stores.
type Memory struct {
	mu   sync.RWMutex
	data memoryData
}

type memoryData struct {
	persons     map[generic.PersonID]generic.Person
	members     map[generic.MemberID]generic.Member
	activities  map[generic.ActivityID]generic.Activity
	attendance  []generic.Attendance
	payments    []generic.Payment
	subGroups   map[generic.SubGroupID]generic.SubGroup
	rosters     map[generic.SubGroupID][]generic.PersonID
	constants   *generic.DuesConstants
	idempotency map[string]bool
}

var _ generic.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: memoryData{
		persons:     make(map[generic.PersonID]generic.Person),
		members:     make(map[generic.MemberID]generic.Member),
		activities:  make(map[generic.ActivityID]generic.Activity),
		subGroups:   make(map[generic.SubGroupID]generic.SubGroup),
		rosters:     make(map[generic.SubGroupID][]generic.PersonID),
		idempotency: make(map[string]bool),
	}}
}

// WithTx executes fn under the write lock.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&memoryView{d: &m.data}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (d memoryData) clone() memoryData {
	c := memoryData{
		persons:     make(map[generic.PersonID]generic.Person, len(d.persons)),
		members:     make(map[generic.MemberID]generic.Member, len(d.members)),
		activities:  make(map[generic.ActivityID]generic.Activity, len(d.activities)),
		attendance:  append([]generic.Attendance{}, d.attendance...),
		payments:    append([]generic.Payment{}, d.payments...),
		subGroups:   make(map[generic.SubGroupID]generic.SubGroup, len(d.subGroups)),
		rosters:     make(map[generic.SubGroupID][]generic.PersonID, len(d.rosters)),
		idempotency: make(map[string]bool, len(d.idempotency)),
	}
	for k, v := range d.persons {
		c.persons[k] = v
	}
	for k, v := range d.members {
		c.members[k] = v
	}
	for k, v := range d.activities {
		c.activities[k] = v
	}
	for k, v := range d.subGroups {
		c.subGroups[k] = v
	}
	for k, v := range d.rosters {
		c.rosters[k] = append([]generic.PersonID{}, v...)
	}
	for k, v := range d.idempotency {
		c.idempotency[k] = v
	}
	if d.constants != nil {
		cc := *d.constants
		c.constants = &cc
	}
	return c
}

// Every Store method on Memory takes the lock and delegates to a view.

func (m *Memory) read(fn func(v *memoryView) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memoryView{d: &m.data})
}

func (m *Memory) write(fn func(v *memoryView) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memoryView{d: &m.data})
}

func (m *Memory) InsertPerson(ctx context.Context, p generic.Person) error {
	return m.write(func(v *memoryView) error { return v.InsertPerson(ctx, p) })
}

func (m *Memory) GetPerson(ctx context.Context, id generic.PersonID) (p *generic.Person, err error) {
	err = m.read(func(v *memoryView) error { p, err = v.GetPerson(ctx, id); return err })
	return p, err
}

func (m *Memory) ListPersons(ctx context.Context) (out []generic.Person, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListPersons(ctx); return err })
	return out, err
}

func (m *Memory) InsertMember(ctx context.Context, mem generic.Member) error {
	return m.write(func(v *memoryView) error { return v.InsertMember(ctx, mem) })
}

func (m *Memory) GetMember(ctx context.Context, id generic.MemberID) (out *generic.Member, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.GetMember(ctx, id); return err })
	return out, err
}

func (m *Memory) GetMemberByPerson(ctx context.Context, personID generic.PersonID) (out *generic.Member, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.GetMemberByPerson(ctx, personID); return err })
	return out, err
}

func (m *Memory) ListMembers(ctx context.Context) (out []generic.Member, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListMembers(ctx); return err })
	return out, err
}

func (m *Memory) InsertActivity(ctx context.Context, a generic.Activity) error {
	return m.write(func(v *memoryView) error { return v.InsertActivity(ctx, a) })
}

func (m *Memory) GetActivity(ctx context.Context, id generic.ActivityID) (out *generic.Activity, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.GetActivity(ctx, id); return err })
	return out, err
}

func (m *Memory) ListActivities(ctx context.Context) (out []generic.Activity, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListActivities(ctx); return err })
	return out, err
}

func (m *Memory) ListActivitiesInPeriod(ctx context.Context, p generic.Period) (out []generic.Activity, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListActivitiesInPeriod(ctx, p); return err })
	return out, err
}

func (m *Memory) GetDuesConstants(ctx context.Context) (out *generic.DuesConstants, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.GetDuesConstants(ctx); return err })
	return out, err
}

func (m *Memory) SaveDuesConstants(ctx context.Context, c generic.DuesConstants) error {
	return m.write(func(v *memoryView) error { return v.SaveDuesConstants(ctx, c) })
}

func (m *Memory) InsertAttendance(ctx context.Context, a generic.Attendance) error {
	return m.write(func(v *memoryView) error { return v.InsertAttendance(ctx, a) })
}

func (m *Memory) GetAttendance(ctx context.Context, id generic.AttendanceID) (out *generic.Attendance, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.GetAttendance(ctx, id); return err })
	return out, err
}

func (m *Memory) FindMemberAttendance(ctx context.Context, activityID generic.ActivityID, memberID generic.MemberID) (out *generic.Attendance, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.FindMemberAttendance(ctx, activityID, memberID); return err })
	return out, err
}

func (m *Memory) FindGuestAttendance(ctx context.Context, activityID generic.ActivityID, guestID generic.PersonID) (out *generic.Attendance, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.FindGuestAttendance(ctx, activityID, guestID); return err })
	return out, err
}

func (m *Memory) ListAttendanceByActivity(ctx context.Context, activityID generic.ActivityID) (out []generic.Attendance, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListAttendanceByActivity(ctx, activityID); return err })
	return out, err
}

func (m *Memory) ListAttendanceByMember(ctx context.Context, memberID generic.MemberID) (out []generic.Attendance, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListAttendanceByMember(ctx, memberID); return err })
	return out, err
}

func (m *Memory) InsertPayment(ctx context.Context, p generic.Payment) error {
	return m.write(func(v *memoryView) error { return v.InsertPayment(ctx, p) })
}

func (m *Memory) ListPaymentsByAttendance(ctx context.Context, id generic.AttendanceID) (out []generic.Payment, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListPaymentsByAttendance(ctx, id); return err })
	return out, err
}

func (m *Memory) ListPaymentsByActivity(ctx context.Context, id generic.ActivityID) (out []generic.Payment, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListPaymentsByActivity(ctx, id); return err })
	return out, err
}

func (m *Memory) InsertSubGroup(ctx context.Context, g generic.SubGroup) error {
	return m.write(func(v *memoryView) error { return v.InsertSubGroup(ctx, g) })
}

func (m *Memory) GetSubGroup(ctx context.Context, id generic.SubGroupID) (out *generic.SubGroup, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.GetSubGroup(ctx, id); return err })
	return out, err
}

func (m *Memory) ListSubGroups(ctx context.Context) (out []generic.SubGroup, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListSubGroups(ctx); return err })
	return out, err
}

func (m *Memory) AddSubGroupMember(ctx context.Context, id generic.SubGroupID, personID generic.PersonID) error {
	return m.write(func(v *memoryView) error { return v.AddSubGroupMember(ctx, id, personID) })
}

func (m *Memory) ListSubGroupRoster(ctx context.Context, id generic.SubGroupID) (out []generic.PersonID, err error) {
	err = m.read(func(v *memoryView) error { out, err = v.ListSubGroupRoster(ctx, id); return err })
	return out, err
}

// =============================================================================
// MEMORY VIEW - Lock-free access, used under Memory's lock
// =============================================================================

type memoryView struct {
	d *memoryData
}

func (v *memoryView) InsertPerson(_ context.Context, p generic.Person) error {
	if _, ok := v.d.persons[p.ID]; ok {
		return &generic.ConflictError{Kind: "person", ID: string(p.ID), Reason: "already exists"}
	}
	v.d.persons[p.ID] = p
	return nil
}

func (v *memoryView) GetPerson(_ context.Context, id generic.PersonID) (*generic.Person, error) {
	p, ok := v.d.persons[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (v *memoryView) ListPersons(_ context.Context) ([]generic.Person, error) {
	out := make([]generic.Person, 0, len(v.d.persons))
	for _, p := range v.d.persons {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *memoryView) InsertMember(_ context.Context, m generic.Member) error {
	if _, ok := v.d.members[m.ID]; ok {
		return &generic.ConflictError{Kind: "member", ID: string(m.ID), Reason: "already exists"}
	}
	for _, existing := range v.d.members {
		if existing.PersonID == m.PersonID {
			return &generic.ConflictError{Kind: "member", ID: string(m.PersonID), Reason: "person already holds a membership"}
		}
	}
	v.d.members[m.ID] = m
	return nil
}

func (v *memoryView) GetMember(_ context.Context, id generic.MemberID) (*generic.Member, error) {
	m, ok := v.d.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (v *memoryView) GetMemberByPerson(_ context.Context, personID generic.PersonID) (*generic.Member, error) {
	for _, m := range v.d.members {
		if m.PersonID == personID {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (v *memoryView) ListMembers(_ context.Context) ([]generic.Member, error) {
	out := make([]generic.Member, 0, len(v.d.members))
	for _, m := range v.d.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MembershipNumber < out[j].MembershipNumber })
	return out, nil
}

func (v *memoryView) InsertActivity(_ context.Context, a generic.Activity) error {
	if _, ok := v.d.activities[a.ID]; ok {
		return &generic.ConflictError{Kind: "activity", ID: string(a.ID), Reason: "already exists"}
	}
	v.d.activities[a.ID] = a
	return nil
}

func (v *memoryView) GetActivity(_ context.Context, id generic.ActivityID) (*generic.Activity, error) {
	a, ok := v.d.activities[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (v *memoryView) ListActivities(_ context.Context) ([]generic.Activity, error) {
	out := make([]generic.Activity, 0, len(v.d.activities))
	for _, a := range v.d.activities {
		out = append(out, a)
	}
	sortActivities(out)
	return out, nil
}

func (v *memoryView) ListActivitiesInPeriod(_ context.Context, p generic.Period) ([]generic.Activity, error) {
	var out []generic.Activity
	for _, a := range v.d.activities {
		if p.Contains(a.Date) {
			out = append(out, a)
		}
	}
	sortActivities(out)
	return out, nil
}

func sortActivities(as []generic.Activity) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Date.Equal(as[j].Date) {
			return as[i].ID < as[j].ID
		}
		return as[i].Date.Before(as[j].Date)
	})
}

func (v *memoryView) GetDuesConstants(_ context.Context) (*generic.DuesConstants, error) {
	if v.d.constants == nil {
		return nil, nil
	}
	c := *v.d.constants
	return &c, nil
}

func (v *memoryView) SaveDuesConstants(_ context.Context, c generic.DuesConstants) error {
	v.d.constants = &c
	return nil
}

func (v *memoryView) InsertAttendance(_ context.Context, a generic.Attendance) error {
	for _, existing := range v.d.attendance {
		if existing.ActivityID != a.ActivityID {
			continue
		}
		sameMember := !a.IsGuest() && !existing.IsGuest() && existing.MemberID == a.MemberID
		sameGuest := a.IsGuest() && existing.GuestPersonID == a.GuestPersonID
		if sameMember || sameGuest {
			return &generic.ConflictError{
				Kind:   "attendance",
				ID:     string(a.ActivityID),
				Reason: "already registered",
				Err:    generic.ErrDuplicateAttendance,
			}
		}
	}
	v.d.attendance = append(v.d.attendance, a)
	return nil
}

func (v *memoryView) GetAttendance(_ context.Context, id generic.AttendanceID) (*generic.Attendance, error) {
	for _, a := range v.d.attendance {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (v *memoryView) FindMemberAttendance(_ context.Context, activityID generic.ActivityID, memberID generic.MemberID) (*generic.Attendance, error) {
	for _, a := range v.d.attendance {
		if a.ActivityID == activityID && a.MemberID == memberID && !a.IsGuest() {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (v *memoryView) FindGuestAttendance(_ context.Context, activityID generic.ActivityID, guestID generic.PersonID) (*generic.Attendance, error) {
	for _, a := range v.d.attendance {
		if a.ActivityID == activityID && a.GuestPersonID == guestID {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (v *memoryView) ListAttendanceByActivity(_ context.Context, activityID generic.ActivityID) ([]generic.Attendance, error) {
	var out []generic.Attendance
	for _, a := range v.d.attendance {
		if a.ActivityID == activityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (v *memoryView) ListAttendanceByMember(_ context.Context, memberID generic.MemberID) ([]generic.Attendance, error) {
	var out []generic.Attendance
	for _, a := range v.d.attendance {
		if a.MemberID == memberID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (v *memoryView) InsertPayment(_ context.Context, p generic.Payment) error {
	if p.IdempotencyKey != "" && v.d.idempotency[p.IdempotencyKey] {
		return &generic.ConflictError{
			Kind:   "payment",
			ID:     p.IdempotencyKey,
			Reason: "idempotency key already used",
			Err:    generic.ErrDuplicateIdempotencyKey,
		}
	}
	v.d.payments = append(v.d.payments, p)
	if p.IdempotencyKey != "" {
		v.d.idempotency[p.IdempotencyKey] = true
	}
	return nil
}

func (v *memoryView) ListPaymentsByAttendance(_ context.Context, id generic.AttendanceID) ([]generic.Payment, error) {
	var out []generic.Payment
	for _, p := range v.d.payments {
		if p.AttendanceID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *memoryView) ListPaymentsByActivity(_ context.Context, id generic.ActivityID) ([]generic.Payment, error) {
	rows := make(map[generic.AttendanceID]bool)
	for _, a := range v.d.attendance {
		if a.ActivityID == id {
			rows[a.ID] = true
		}
	}
	var out []generic.Payment
	for _, p := range v.d.payments {
		if rows[p.AttendanceID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *memoryView) InsertSubGroup(_ context.Context, g generic.SubGroup) error {
	if _, ok := v.d.subGroups[g.ID]; ok {
		return &generic.ConflictError{Kind: "subgroup", ID: string(g.ID), Reason: "already exists"}
	}
	v.d.subGroups[g.ID] = g
	return nil
}

func (v *memoryView) GetSubGroup(_ context.Context, id generic.SubGroupID) (*generic.SubGroup, error) {
	g, ok := v.d.subGroups[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (v *memoryView) ListSubGroups(_ context.Context) ([]generic.SubGroup, error) {
	out := make([]generic.SubGroup, 0, len(v.d.subGroups))
	for _, g := range v.d.subGroups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *memoryView) AddSubGroupMember(_ context.Context, id generic.SubGroupID, personID generic.PersonID) error {
	for _, p := range v.d.rosters[id] {
		if p == personID {
			return nil
		}
	}
	v.d.rosters[id] = append(v.d.rosters[id], personID)
	return nil
}

func (v *memoryView) ListSubGroupRoster(_ context.Context, id generic.SubGroupID) ([]generic.PersonID, error) {
	return append([]generic.PersonID{}, v.d.rosters[id]...), nil
}
