package repository

import (
	"reflect"
)

// Changes collects the non-nil pointer fields of a patch struct keyed by
// their db tag. Fields without a db tag are skipped.
//
//	type taskPatch struct {
//		Title  *string `json:"title" db:"title"`
//		Status *string `json:"status" db:"status"`
//	}
func Changes(patch interface{}) map[string]interface{} {
	v := reflect.Indirect(reflect.ValueOf(patch))
	changes := make(map[string]interface{})
	if v.Kind() != reflect.Struct {
		return changes
	}
	for i := 0; i < v.NumField(); i++ {
		col := dbTag(v.Type().Field(i))
		f := v.Field(i)
		if col == "" || f.Kind() != reflect.Ptr || f.IsNil() {
			continue
		}
		changes[col] = f.Elem().Interface()
	}
	return changes
}
