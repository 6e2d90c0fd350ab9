package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/dues-engine/generic"
)

// =============================================================================
// IDENTITY STORE
// =============================================================================

func (x *queries) InsertPerson(ctx context.Context, p generic.Person) error {
	err := x.exec(ctx, `
		INSERT INTO persons (id, name, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(p.ID), p.Name, p.Email, p.Phone, formatTime(p.CreatedAt),
	)
	if x.isUnique(err) {
		return &generic.ConflictError{Kind: "person", ID: string(p.ID), Reason: "already exists"}
	}
	return generic.Infra("insert person", err)
}

const personColumns = `id, name, email, phone, created_at`

func scanPerson(row rowScanner) (generic.Person, error) {
	var (
		p       generic.Person
		id      string
		created string
	)
	if err := row.Scan(&id, &p.Name, &p.Email, &p.Phone, &created); err != nil {
		return p, err
	}
	p.ID = generic.PersonID(id)
	t, err := parseTime(created)
	if err != nil {
		return p, fmt.Errorf("person %s created_at: %w", id, err)
	}
	p.CreatedAt = t
	return p, nil
}

func (x *queries) GetPerson(ctx context.Context, id generic.PersonID) (*generic.Person, error) {
	row := x.queryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = ?`, string(id))
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Infra("get person", err)
	}
	return &p, nil
}

func (x *queries) ListPersons(ctx context.Context) ([]generic.Person, error) {
	rows, err := x.query(ctx, `SELECT `+personColumns+` FROM persons ORDER BY name, id`)
	if err != nil {
		return nil, generic.Infra("list persons", err)
	}
	defer rows.Close()

	var out []generic.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, generic.Infra("scan person", err)
		}
		out = append(out, p)
	}
	return out, generic.Infra("list persons", rows.Err())
}

func (x *queries) InsertMember(ctx context.Context, m generic.Member) error {
	err := x.exec(ctx, `
		INSERT INTO members (id, person_id, membership_number, joined_at)
		VALUES (?, ?, ?, ?)`,
		string(m.ID), string(m.PersonID), m.MembershipNumber, formatTime(m.JoinedAt),
	)
	if x.isUnique(err) {
		return &generic.ConflictError{Kind: "member", ID: string(m.PersonID), Reason: "person already holds a membership"}
	}
	return generic.Infra("insert member", err)
}

const memberColumns = `id, person_id, membership_number, joined_at`

func scanMember(row rowScanner) (generic.Member, error) {
	var (
		m            generic.Member
		id, personID string
		joined       string
	)
	if err := row.Scan(&id, &personID, &m.MembershipNumber, &joined); err != nil {
		return m, err
	}
	m.ID = generic.MemberID(id)
	m.PersonID = generic.PersonID(personID)
	t, err := parseTime(joined)
	if err != nil {
		return m, fmt.Errorf("member %s joined_at: %w", id, err)
	}
	m.JoinedAt = t
	return m, nil
}

func (x *queries) getMember(ctx context.Context, op, where string, arg any) (*generic.Member, error) {
	row := x.queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE `+where, arg)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Infra(op, err)
	}
	return &m, nil
}

func (x *queries) GetMember(ctx context.Context, id generic.MemberID) (*generic.Member, error) {
	return x.getMember(ctx, "get member", "id = ?", string(id))
}

func (x *queries) GetMemberByPerson(ctx context.Context, personID generic.PersonID) (*generic.Member, error) {
	return x.getMember(ctx, "get member by person", "person_id = ?", string(personID))
}

func (x *queries) ListMembers(ctx context.Context) ([]generic.Member, error) {
	rows, err := x.query(ctx, `SELECT `+memberColumns+` FROM members ORDER BY membership_number, id`)
	if err != nil {
		return nil, generic.Infra("list members", err)
	}
	defer rows.Close()

	var out []generic.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, generic.Infra("scan member", err)
		}
		out = append(out, m)
	}
	return out, generic.Infra("list members", rows.Err())
}

// =============================================================================
// ACTIVITY STORE
// =============================================================================

func (x *queries) InsertActivity(ctx context.Context, a generic.Activity) error {
	err := x.exec(ctx, `
		INSERT INTO activities
		(id, activity_date, description, priority, region, due, discount_percent, guest_threshold, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID),
		formatTime(a.Date),
		a.Description,
		a.Priority,
		a.Region,
		a.Due.Value.String(),
		a.Discount.Percent.String(),
		a.Discount.GuestThreshold,
		formatTime(a.CreatedAt),
	)
	if x.isUnique(err) {
		return &generic.ConflictError{Kind: "activity", ID: string(a.ID), Reason: "already exists"}
	}
	return generic.Infra("insert activity", err)
}

const activityColumns = `id, activity_date, description, priority, region, due, discount_percent, guest_threshold, created_at`

func scanActivity(row rowScanner) (generic.Activity, error) {
	var (
		a                      generic.Activity
		id, date, due, percent string
		created                string
	)
	err := row.Scan(&id, &date, &a.Description, &a.Priority, &a.Region, &due, &percent, &a.Discount.GuestThreshold, &created)
	if err != nil {
		return a, err
	}
	a.ID = generic.ActivityID(id)
	if a.Date, err = parseTime(date); err != nil {
		return a, fmt.Errorf("activity %s date: %w", id, err)
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return a, fmt.Errorf("activity %s created_at: %w", id, err)
	}
	if a.Due, err = generic.ParseAmount(due); err != nil {
		return a, fmt.Errorf("activity %s due: %w", id, err)
	}
	if a.Discount.Percent, err = decimal.NewFromString(percent); err != nil {
		return a, fmt.Errorf("activity %s discount: %w", id, err)
	}
	return a, nil
}

func (x *queries) GetActivity(ctx context.Context, id generic.ActivityID) (*generic.Activity, error) {
	row := x.queryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, string(id))
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Infra("get activity", err)
	}
	return &a, nil
}

func (x *queries) ListActivities(ctx context.Context) ([]generic.Activity, error) {
	return x.queryActivities(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY activity_date, id`)
}

func (x *queries) ListActivitiesInPeriod(ctx context.Context, p generic.Period) ([]generic.Activity, error) {
	return x.queryActivities(ctx,
		`SELECT `+activityColumns+` FROM activities
		 WHERE activity_date >= ? AND activity_date <= ?
		 ORDER BY activity_date, id`,
		formatTime(p.Start), formatTime(p.End),
	)
}

func (x *queries) queryActivities(ctx context.Context, query string, args ...any) ([]generic.Activity, error) {
	rows, err := x.query(ctx, query, args...)
	if err != nil {
		return nil, generic.Infra("list activities", err)
	}
	defer rows.Close()

	var out []generic.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, generic.Infra("scan activity", err)
		}
		out = append(out, a)
	}
	return out, generic.Infra("list activities", rows.Err())
}

func (x *queries) GetDuesConstants(ctx context.Context) (*generic.DuesConstants, error) {
	var minDue, maxDue string
	err := x.queryRow(ctx, `SELECT min_due, max_due FROM dues_constants WHERE id = 1`).Scan(&minDue, &maxDue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Infra("get dues constants", err)
	}
	c := generic.DuesConstants{}
	if c.Min, err = generic.ParseAmount(minDue); err != nil {
		return nil, generic.Infra("parse dues constants", err)
	}
	if c.Max, err = generic.ParseAmount(maxDue); err != nil {
		return nil, generic.Infra("parse dues constants", err)
	}
	return &c, nil
}

func (x *queries) SaveDuesConstants(ctx context.Context, c generic.DuesConstants) error {
	err := x.exec(ctx, `
		INSERT INTO dues_constants (id, min_due, max_due) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET min_due = excluded.min_due, max_due = excluded.max_due`,
		c.Min.Value.String(), c.Max.Value.String(),
	)
	return generic.Infra("save dues constants", err)
}

// =============================================================================
// ATTENDANCE STORE
// =============================================================================

func (x *queries) InsertAttendance(ctx context.Context, a generic.Attendance) error {
	err := x.exec(ctx, `
		INSERT INTO attendance (id, activity_id, member_id, guest_person_id, registered_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(a.ID),
		string(a.ActivityID),
		string(a.MemberID),
		nullString(string(a.GuestPersonID)),
		formatTime(a.RegisteredAt),
	)
	if x.isUnique(err) {
		return &generic.ConflictError{
			Kind:   "attendance",
			ID:     string(a.ActivityID),
			Reason: "already registered",
			Err:    generic.ErrDuplicateAttendance,
		}
	}
	return generic.Infra("insert attendance", err)
}

const attendanceColumns = `id, activity_id, member_id, guest_person_id, registered_at`

func scanAttendance(row rowScanner) (generic.Attendance, error) {
	var (
		a                        generic.Attendance
		id, activityID, memberID string
		guest                    sql.NullString
		registered               string
	)
	if err := row.Scan(&id, &activityID, &memberID, &guest, &registered); err != nil {
		return a, err
	}
	a.ID = generic.AttendanceID(id)
	a.ActivityID = generic.ActivityID(activityID)
	a.MemberID = generic.MemberID(memberID)
	a.GuestPersonID = generic.PersonID(guest.String)
	t, err := parseTime(registered)
	if err != nil {
		return a, fmt.Errorf("attendance %s registered_at: %w", id, err)
	}
	a.RegisteredAt = t
	return a, nil
}

func (x *queries) getAttendance(ctx context.Context, op, query string, args ...any) (*generic.Attendance, error) {
	a, err := scanAttendance(x.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Infra(op, err)
	}
	return &a, nil
}

// GetAttendance locks the row when called inside a transaction.
func (x *queries) GetAttendance(ctx context.Context, id generic.AttendanceID) (*generic.Attendance, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance WHERE id = ?`
	if x.inTx {
		query += x.d.LockClause
	}
	return x.getAttendance(ctx, "get attendance", query, string(id))
}

func (x *queries) FindMemberAttendance(ctx context.Context, activityID generic.ActivityID, memberID generic.MemberID) (*generic.Attendance, error) {
	return x.getAttendance(ctx, "find member attendance",
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE activity_id = ? AND member_id = ? AND guest_person_id IS NULL`,
		string(activityID), string(memberID),
	)
}

func (x *queries) FindGuestAttendance(ctx context.Context, activityID generic.ActivityID, guestID generic.PersonID) (*generic.Attendance, error) {
	return x.getAttendance(ctx, "find guest attendance",
		`SELECT `+attendanceColumns+` FROM attendance
		 WHERE activity_id = ? AND guest_person_id = ?`,
		string(activityID), string(guestID),
	)
}

func (x *queries) ListAttendanceByActivity(ctx context.Context, activityID generic.ActivityID) ([]generic.Attendance, error) {
	return x.queryAttendance(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE activity_id = ? ORDER BY registered_at, id`,
		string(activityID),
	)
}

func (x *queries) ListAttendanceByMember(ctx context.Context, memberID generic.MemberID) ([]generic.Attendance, error) {
	return x.queryAttendance(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE member_id = ? ORDER BY registered_at, id`,
		string(memberID),
	)
}

func (x *queries) queryAttendance(ctx context.Context, query string, args ...any) ([]generic.Attendance, error) {
	rows, err := x.query(ctx, query, args...)
	if err != nil {
		return nil, generic.Infra("list attendance", err)
	}
	defer rows.Close()

	var out []generic.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, generic.Infra("scan attendance", err)
		}
		out = append(out, a)
	}
	return out, generic.Infra("list attendance", rows.Err())
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (x *queries) InsertPayment(ctx context.Context, p generic.Payment) error {
	err := x.exec(ctx, `
		INSERT INTO payments (id, attendance_id, amount, idempotency_key, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(p.ID),
		string(p.AttendanceID),
		p.Amount.Value.String(),
		nullString(p.IdempotencyKey),
		formatTime(p.RecordedAt),
	)
	if x.isUnique(err) {
		return &generic.ConflictError{
			Kind:   "payment",
			ID:     p.IdempotencyKey,
			Reason: "idempotency key already used",
			Err:    generic.ErrDuplicateIdempotencyKey,
		}
	}
	return generic.Infra("insert payment", err)
}

func scanPayment(row rowScanner) (generic.Payment, error) {
	var (
		p                generic.Payment
		id, attendanceID string
		amount, recorded string
		key              sql.NullString
	)
	if err := row.Scan(&id, &attendanceID, &amount, &key, &recorded); err != nil {
		return p, err
	}
	p.ID = generic.PaymentID(id)
	p.AttendanceID = generic.AttendanceID(attendanceID)
	p.IdempotencyKey = key.String
	var err error
	if p.Amount, err = generic.ParseAmount(amount); err != nil {
		return p, fmt.Errorf("payment %s amount: %w", id, err)
	}
	if p.RecordedAt, err = parseTime(recorded); err != nil {
		return p, fmt.Errorf("payment %s recorded_at: %w", id, err)
	}
	return p, nil
}

func (x *queries) ListPaymentsByAttendance(ctx context.Context, attendanceID generic.AttendanceID) ([]generic.Payment, error) {
	return x.queryPayments(ctx, `
		SELECT id, attendance_id, amount, idempotency_key, recorded_at
		FROM payments WHERE attendance_id = ?
		ORDER BY recorded_at, id`,
		string(attendanceID),
	)
}

func (x *queries) ListPaymentsByActivity(ctx context.Context, activityID generic.ActivityID) ([]generic.Payment, error) {
	return x.queryPayments(ctx, `
		SELECT p.id, p.attendance_id, p.amount, p.idempotency_key, p.recorded_at
		FROM payments p
		JOIN attendance a ON a.id = p.attendance_id
		WHERE a.activity_id = ?
		ORDER BY p.recorded_at, p.id`,
		string(activityID),
	)
}

func (x *queries) queryPayments(ctx context.Context, query string, args ...any) ([]generic.Payment, error) {
	rows, err := x.query(ctx, query, args...)
	if err != nil {
		return nil, generic.Infra("list payments", err)
	}
	defer rows.Close()

	var out []generic.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, generic.Infra("scan payment", err)
		}
		out = append(out, p)
	}
	return out, generic.Infra("list payments", rows.Err())
}

// =============================================================================
// SUB-GROUP STORE
// =============================================================================

func (x *queries) InsertSubGroup(ctx context.Context, g generic.SubGroup) error {
	err := x.exec(ctx, `
		INSERT INTO sub_groups (id, name, region, discount_percent, guest_threshold)
		VALUES (?, ?, ?, ?, ?)`,
		string(g.ID), g.Name, g.Region, g.Discount.Percent.String(), g.Discount.GuestThreshold,
	)
	if x.isUnique(err) {
		return &generic.ConflictError{Kind: "subgroup", ID: string(g.ID), Reason: "already exists"}
	}
	return generic.Infra("insert sub-group", err)
}

func scanSubGroup(row rowScanner) (generic.SubGroup, error) {
	var (
		g           generic.SubGroup
		id, percent string
	)
	if err := row.Scan(&id, &g.Name, &g.Region, &percent, &g.Discount.GuestThreshold); err != nil {
		return g, err
	}
	g.ID = generic.SubGroupID(id)
	var err error
	if g.Discount.Percent, err = decimal.NewFromString(percent); err != nil {
		return g, fmt.Errorf("sub-group %s discount: %w", id, err)
	}
	return g, nil
}

func (x *queries) GetSubGroup(ctx context.Context, id generic.SubGroupID) (*generic.SubGroup, error) {
	row := x.queryRow(ctx, `
		SELECT id, name, region, discount_percent, guest_threshold
		FROM sub_groups WHERE id = ?`, string(id))
	g, err := scanSubGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, generic.Infra("get sub-group", err)
	}
	return &g, nil
}

func (x *queries) ListSubGroups(ctx context.Context) ([]generic.SubGroup, error) {
	rows, err := x.query(ctx, `
		SELECT id, name, region, discount_percent, guest_threshold
		FROM sub_groups ORDER BY name, id`)
	if err != nil {
		return nil, generic.Infra("list sub-groups", err)
	}
	defer rows.Close()

	var out []generic.SubGroup
	for rows.Next() {
		g, err := scanSubGroup(rows)
		if err != nil {
			return nil, generic.Infra("scan sub-group", err)
		}
		out = append(out, g)
	}
	return out, generic.Infra("list sub-groups", rows.Err())
}

// AddSubGroupMember is idempotent.
func (x *queries) AddSubGroupMember(ctx context.Context, id generic.SubGroupID, personID generic.PersonID) error {
	err := x.exec(ctx, `
		INSERT INTO sub_group_members (sub_group_id, person_id) VALUES (?, ?)
		ON CONFLICT (sub_group_id, person_id) DO NOTHING`,
		string(id), string(personID),
	)
	return generic.Infra("add sub-group member", err)
}

func (x *queries) ListSubGroupRoster(ctx context.Context, id generic.SubGroupID) ([]generic.PersonID, error) {
	rows, err := x.query(ctx, `
		SELECT person_id FROM sub_group_members
		WHERE sub_group_id = ? ORDER BY person_id`, string(id))
	if err != nil {
		return nil, generic.Infra("list sub-group roster", err)
	}
	defer rows.Close()

	var out []generic.PersonID
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, generic.Infra("scan sub-group roster", err)
		}
		out = append(out, generic.PersonID(p))
	}
	return out, generic.Infra("list sub-group roster", rows.Err())
}
