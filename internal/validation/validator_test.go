package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequired(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name string `json:"name" validate:"required"`
	}

	assert.Error(t, v.Validate(req{}))
	assert.NoError(t, v.Validate(req{Name: "x"}))
}

func TestEmail(t *testing.T) {
	v := NewValidator()

	type req struct {
		Contact string `json:"contact" validate:"email"`
	}

	assert.NoError(t, v.Validate(req{}), "empty optional email passes")
	assert.NoError(t, v.Validate(req{Contact: "a@b.example"}))
	assert.Error(t, v.Validate(req{Contact: "not-an-email"}))
}

func TestUUID(t *testing.T) {
	v := NewValidator()

	type req struct {
		ID string `json:"id" validate:"uuid"`
	}

	assert.NoError(t, v.Validate(req{}))
	assert.NoError(t, v.Validate(req{ID: "6b1f0f3e-5a43-4b62-9e8c-16cf2f1e0a11"}))
	assert.Error(t, v.Validate(req{ID: "nope"}))
}

func TestMinMax(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name  string   `json:"name" validate:"min=3,max=5"`
		Items []string `json:"items" validate:"min=1,max=2"`
		Count int      `json:"count" validate:"min=0,max=10"`
	}

	valid := req{Name: "abcd", Items: []string{"a"}, Count: 5}
	assert.NoError(t, v.Validate(valid))

	tooShort := valid
	tooShort.Name = "ab"
	assert.Error(t, v.Validate(tooShort))

	tooLong := valid
	tooLong.Name = "abcdef"
	assert.Error(t, v.Validate(tooLong))

	emptySlice := valid
	emptySlice.Items = nil
	assert.Error(t, v.Validate(emptySlice))

	bigCount := valid
	bigCount.Count = 11
	assert.Error(t, v.Validate(bigCount))
}

func TestPointerFields(t *testing.T) {
	v := NewValidator()

	type req struct {
		FacilityID *string `json:"facilityId" validate:"uuid"`
		Name       *string `json:"name" validate:"required,min=3"`
	}

	good := "6b1f0f3e-5a43-4b62-9e8c-16cf2f1e0a11"
	bad := "nope"
	name := "Hall B"
	short := "ab"

	assert.NoError(t, v.Validate(req{FacilityID: &good, Name: &name}))
	assert.NoError(t, v.Validate(req{Name: &name}), "nil optional pointer passes")
	assert.Error(t, v.Validate(req{FacilityID: &bad, Name: &name}))
	assert.Error(t, v.Validate(req{Name: &short}))
	assert.Error(t, v.Validate(req{}), "nil required pointer fails")
}

func TestPointerToStruct(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name string `json:"name" validate:"required"`
	}

	assert.NoError(t, v.Validate(&req{Name: "x"}))
	assert.Error(t, v.Validate(&req{}))
	assert.Error(t, v.Validate("not a struct"))
}
