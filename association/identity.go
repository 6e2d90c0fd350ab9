package association

import (
	"context"

	"github.com/warp/dues-engine/generic"
)

// Identify returns the person together with the membership they hold, if
// any. Callers branch on Identity.Role(), never on the concrete record.
func (s *Service) Identify(ctx context.Context, personID generic.PersonID) (generic.Identity, error) {
	person, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return generic.Identity{}, err
	}
	if person == nil {
		return generic.Identity{}, &generic.NotFoundError{Kind: "person", ID: string(personID)}
	}
	member, err := s.store.GetMemberByPerson(ctx, personID)
	if err != nil {
		return generic.Identity{}, err
	}
	return generic.Identity{Person: *person, Member: member}, nil
}

// IsMember reports whether the person holds a membership. Unknown persons
// are not members.
func (s *Service) IsMember(ctx context.Context, personID generic.PersonID) (bool, error) {
	member, err := s.store.GetMemberByPerson(ctx, personID)
	if err != nil {
		return false, err
	}
	return member != nil, nil
}
