// Package person holds the record type of the CSV import job and its
// reader, processor and sinks.
package person

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuongbtq/batch-scheduler/internal/batch"
)

// Person is one imported record
type Person struct {
	ID    int64  `db:"person_id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

// UppercaseProcessor normalises name and email to upper case
type UppercaseProcessor struct{}

func (UppercaseProcessor) Process(_ context.Context, item any) (any, error) {
	p, err := asPerson(item)
	if err != nil {
		return nil, err
	}
	return Person{
		ID:    p.ID,
		Name:  strings.ToUpper(p.Name),
		Email: strings.ToUpper(p.Email),
	}, nil
}

var _ batch.ItemProcessor = UppercaseProcessor{}

func asPerson(item any) (Person, error) {
	switch p := item.(type) {
	case Person:
		return p, nil
	case *Person:
		return *p, nil
	default:
		return Person{}, fmt.Errorf("unexpected item type %T, want person.Person", item)
	}
}

func asPeople(items []any) ([]Person, error) {
	people := make([]Person, len(items))
	for i, item := range items {
		p, err := asPerson(item)
		if err != nil {
			return nil, err
		}
		people[i] = p
	}
	return people, nil
}
