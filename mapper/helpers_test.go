package mapper

// Test doubles shared by the mapper tests.

type testFieldType struct {
	BaseFieldType
}

func newTestFieldType(name, typeName string) *testFieldType {
	return &testFieldType{BaseFieldType: NewBaseFieldType(name, typeName, nil)}
}

// testDynamicType hands out a keyword child for every key and records the
// keys it was asked for.
type testDynamicType struct {
	BaseFieldType
	asked []string
}

func newTestDynamicType(name string) *testDynamicType {
	return &testDynamicType{BaseFieldType: NewBaseFieldType(name, "flattened", nil)}
}

func (d *testDynamicType) ChildFieldType(key string) FieldType {
	d.asked = append(d.asked, key)
	if key == "" {
		return nil
	}
	return newTestFieldType(d.Name()+"."+key, "keyword")
}

type testRuntimeField struct {
	name     string
	typeName string
	types    []FieldType
	resolve  func(lookup LookupFunc) (FieldType, error)
}

func (r *testRuntimeField) Name() string            { return r.name }
func (r *testRuntimeField) TypeName() string        { return r.typeName }
func (r *testRuntimeField) Meta() map[string]string { return nil }
func (r *testRuntimeField) FieldTypes() []FieldType { return r.types }

func (r *testRuntimeField) Resolve(lookup LookupFunc) (FieldType, error) {
	if r.resolve != nil {
		return r.resolve(lookup)
	}
	if len(r.types) == 0 {
		return nil, nil
	}
	return r.types[0], nil
}

// leafRuntimeField backs a single field type of the same name.
func leafRuntimeField(name, typeName string) *testRuntimeField {
	return &testRuntimeField{name: name, typeName: typeName, types: []FieldType{newTestFieldType(name, typeName)}}
}

// pointerRuntimeField resolves to whatever target resolves to.
func pointerRuntimeField(name, target string) *testRuntimeField {
	return &testRuntimeField{
		name:     name,
		typeName: "lookup",
		resolve: func(lookup LookupFunc) (FieldType, error) {
			return lookup(target)
		},
	}
}

func concrete(name, typeName string, copyTo ...string) Field {
	return Field{Type: newTestFieldType(name, typeName), CopyTo: copyTo}
}
