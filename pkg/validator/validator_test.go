package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	ID     string          `json:"id" validate:"required,notblank,max=8"`
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
}

func TestValidateStructured(t *testing.T) {
	v := New()

	assert.Nil(t, v.ValidateStructured(sample{ID: "tx1", Amount: decimal.NewFromInt(1)}))

	errs := v.ValidateStructured(sample{ID: "", Amount: decimal.NewFromInt(-1)})
	assert.Equal(t, "This field is required", errs["id"])
	assert.Equal(t, "Must be greater than or equal to 0", errs["amount"])

	errs = v.ValidateStructured(sample{ID: "   "})
	assert.Equal(t, "Must not be blank", errs["id"])

	errs = v.ValidateStructured(sample{ID: "far-too-long"})
	assert.Equal(t, "Must be at most 8 characters", errs["id"])
}

func TestValidate(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(sample{ID: "tx1"}))
	err := v.Validate(sample{})
	assert.ErrorContains(t, err, "Field 'id' failed validation 'required'")
}

func TestValidateStructured_ExtremeDecimalExponents(t *testing.T) {
	v := New()

	errs := v.ValidateStructured(sample{ID: "tx1", Amount: decimal.New(1, 2000000000)})
	assert.Nil(t, errs)

	errs = v.ValidateStructured(sample{ID: "tx1", Amount: decimal.New(-1, 2000000000)})
	assert.Equal(t, "Must be greater than or equal to 0", errs["amount"])

	errs = v.ValidateStructured(sample{ID: "tx1", Amount: decimal.New(1, -2000000000)})
	assert.Nil(t, errs)
}

type optionalAmount struct {
	Amount *decimal.Decimal `json:"amount"`
}

func TestValidateStructured_UntaggedDecimalPointer(t *testing.T) {
	v := New()
	huge := decimal.New(1, 2000000000)

	assert.Nil(t, v.ValidateStructured(&optionalAmount{Amount: &huge}))
	assert.Nil(t, v.ValidateStructured(&optionalAmount{}))
}
