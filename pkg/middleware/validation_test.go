package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaterialNoValidator(t *testing.T) {
	v := InitValidator()

	type request struct {
		MaterialNo string `json:"materialNo" validate:"required,material_no"`
	}

	assert.NoError(t, v.Struct(request{MaterialNo: "MAT-001"}))
	assert.NoError(t, v.Struct(request{MaterialNo: "A1B"}))
	assert.Error(t, v.Struct(request{MaterialNo: "mat-001"}))
	assert.Error(t, v.Struct(request{MaterialNo: "-LEADING"}))
	assert.Error(t, v.Struct(request{MaterialNo: "AB"}))
}

func TestSafeStringValidator(t *testing.T) {
	v := InitValidator()

	type request struct {
		Note string `json:"note" validate:"omitempty,safe_string"`
	}

	assert.NoError(t, v.Struct(request{}))
	assert.NoError(t, v.Struct(request{Note: "replacing worn cables (aisle 3)"}))
	assert.Error(t, v.Struct(request{Note: "bad\x00byte"}))
}
