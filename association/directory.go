package association

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/dues-engine/generic"
)

// =============================================================================
// DIRECTORY - Persons, members, sub-groups and dues constants
// =============================================================================

type NewPerson struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,max=50"`
}

func (s *Service) CreatePerson(ctx context.Context, in NewPerson) (generic.PersonID, error) {
	if err := s.check(in); err != nil {
		return "", err
	}
	p := generic.Person{
		ID:        generic.PersonID(s.newID()),
		Name:      in.Name,
		Email:     in.Email,
		Phone:     in.Phone,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertPerson(ctx, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// CreateMember grants a membership to an existing person.
func (s *Service) CreateMember(ctx context.Context, personID generic.PersonID, membershipNumber string) (generic.MemberID, error) {
	m := generic.Member{
		ID:               generic.MemberID(s.newID()),
		PersonID:         personID,
		MembershipNumber: membershipNumber,
		JoinedAt:         s.now(),
	}
	err := s.store.WithTx(ctx, func(tx generic.Store) error {
		person, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if person == nil {
			return &generic.NotFoundError{Kind: "person", ID: string(personID)}
		}
		existing, err := tx.GetMemberByPerson(ctx, personID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &generic.BusinessRuleError{
				Rule:    generic.RuleAlreadyMember,
				Message: "person already holds a membership",
			}
		}
		return tx.InsertMember(ctx, m)
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("member created", "member_id", m.ID, "person_id", personID)
	return m.ID, nil
}

func (s *Service) GetMember(ctx context.Context, id generic.MemberID) (generic.Member, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return generic.Member{}, err
	}
	if m == nil {
		return generic.Member{}, &generic.NotFoundError{Kind: "member", ID: string(id)}
	}
	return *m, nil
}

func (s *Service) ListPersons(ctx context.Context) ([]generic.Person, error) {
	return s.store.ListPersons(ctx)
}

func (s *Service) ListMembers(ctx context.Context) ([]generic.Member, error) {
	return s.store.ListMembers(ctx)
}

type NewSubGroup struct {
	Name            string          `json:"name" validate:"required,max=200"`
	Region          string          `json:"region" validate:"max=100"`
	DiscountPercent decimal.Decimal `json:"discountPercent" validate:"gte=0,lte=100"`
	GuestThreshold  int             `json:"guestThreshold" validate:"gte=0"`
}

func (s *Service) CreateSubGroup(ctx context.Context, in NewSubGroup) (generic.SubGroupID, error) {
	if err := s.check(in); err != nil {
		return "", err
	}
	g := generic.SubGroup{
		ID:     generic.SubGroupID(s.newID()),
		Name:   in.Name,
		Region: in.Region,
		Discount: generic.DiscountRule{
			Percent:        in.DiscountPercent,
			GuestThreshold: in.GuestThreshold,
		},
	}
	if err := s.store.InsertSubGroup(ctx, g); err != nil {
		return "", err
	}
	return g.ID, nil
}

// AddToSubGroup maps a person (member or guest) to a sub-group. Repeating
// the call is a no-op.
func (s *Service) AddToSubGroup(ctx context.Context, id generic.SubGroupID, personID generic.PersonID) error {
	group, err := s.store.GetSubGroup(ctx, id)
	if err != nil {
		return err
	}
	if group == nil {
		return &generic.NotFoundError{Kind: "subgroup", ID: string(id)}
	}
	person, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return err
	}
	if person == nil {
		return &generic.NotFoundError{Kind: "person", ID: string(personID)}
	}
	return s.store.AddSubGroupMember(ctx, id, personID)
}

func (s *Service) ListSubGroups(ctx context.Context) ([]generic.SubGroup, error) {
	return s.store.ListSubGroups(ctx)
}

// SetDuesConstants replaces the legal due range used by CreateActivity.
// Existing activities are not re-checked.
func (s *Service) SetDuesConstants(ctx context.Context, c generic.DuesConstants) error {
	if c.Min.IsNegative() {
		return &generic.ValidationError{Field: "min", Value: c.Min.String(), Reason: "must not be negative"}
	}
	if c.Max.LessThan(c.Min) {
		return &generic.ValidationError{Field: "max", Value: c.Max.String(), Reason: "must not be below min"}
	}
	if err := s.store.SaveDuesConstants(ctx, c); err != nil {
		return err
	}
	s.logger.Info("dues constants updated", "min", c.Min.String(), "max", c.Max.String())
	return nil
}

func (s *Service) GetDuesConstants(ctx context.Context) (generic.DuesConstants, error) {
	c, err := s.store.GetDuesConstants(ctx)
	if err != nil {
		return generic.DuesConstants{}, err
	}
	if c == nil {
		return generic.DuesConstants{}, &generic.NotFoundError{Kind: "dues_constants"}
	}
	return *c, nil
}
