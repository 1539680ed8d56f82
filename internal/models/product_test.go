package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilters_Accepts(t *testing.T) {
	f := Filters{MinPrice: 10, MaxPrice: 100, MinCommissionRate: 5, MinRating: 4}

	tests := []struct {
		name string
		p    Product
		want bool
	}{
		{"inside every bound", Product{Price: 50, CommissionRate: 10, Rating: 4.5}, true},
		{"inclusive bounds", Product{Price: 100, CommissionRate: 5, Rating: 4}, true},
		{"too cheap", Product{Price: 9.99, CommissionRate: 10, Rating: 4.5}, false},
		{"too expensive", Product{Price: 100.01, CommissionRate: 10, Rating: 4.5}, false},
		{"low commission", Product{Price: 50, CommissionRate: 4.9, Rating: 4.5}, false},
		{"unknown rating", Product{Price: 50, CommissionRate: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Accepts(tt.p))
		})
	}

	unbounded := Filters{MinPrice: 10}
	assert.True(t, unbounded.Accepts(Product{Price: 1e6}))
}

func TestFilters_Validate(t *testing.T) {
	assert.NoError(t, DefaultFilters().Validate())
	assert.NoError(t, Filters{}.Validate())
	assert.Error(t, Filters{MinPrice: -1}.Validate())
	assert.Error(t, Filters{MinPrice: 20, MaxPrice: 10}.Validate())
	assert.Error(t, Filters{MinRating: 5.5}.Validate())
	assert.Error(t, Filters{MinCommissionRate: 101}.Validate())
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusSelected, StatusVideoCreated, StatusPosted} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("archived").Valid())
}
