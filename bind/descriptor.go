// Package bind maps in-memory Go values to the keypack map and
// struct-template encodings and back.
//
// The mapping is driven by a TypeDescriptor: an ordered field schema derived
// from struct tags. Decoding is tolerant of schema drift: unknown keys are
// skipped, missing keys keep the target's existing values, and a known key
// whose wire type is incompatible with the field's declared type is skipped
// without aborting the record.
package bind

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/keypack/errs"
)

// TagName is the struct tag consulted for field schemas:
//
//	Field int `keypack:"wire_name"`         rename
//	Field int `keypack:"wire_name,order=2"` rename and order
//	Field int `keypack:",order=2"`          order only
//	Field int `keypack:"-"`                 ignored in both directions
//
// Fields are emitted sorted by (order ascending, wire name ascending);
// untagged fields have order 0.
const TagName = "keypack"

// FieldDescriptor describes one bound struct field.
type FieldDescriptor struct {
	// Name is the wire name of the field.
	Name string

	// Order is the explicit emit order; ties break on Name.
	Order int

	// Index is the reflect field index path within the struct.
	Index []int

	// Type is the field's declared Go type.
	Type reflect.Type
}

// TypeDescriptor is the ordered field schema of a struct type. Descriptors
// are immutable once built and cached process-wide.
type TypeDescriptor struct {
	// Type is the described struct type.
	Type reflect.Type

	// Fields holds the bound fields in emit order; ignored and unexported
	// fields are absent.
	Fields []FieldDescriptor

	byName map[string]*FieldDescriptor
	names  []string
}

// Names returns the wire names in emit order. The slice is shared; callers
// must not modify it.
func (d *TypeDescriptor) Names() []string {
	return d.names
}

// FieldByName returns the field bound to a wire name.
func (d *TypeDescriptor) FieldByName(name string) (*FieldDescriptor, bool) {
	f, ok := d.byName[name]
	return f, ok
}

// descriptorCache memoizes TypeDescriptors per reflect.Type. Entries are
// immutable, so concurrent readers need no further synchronization.
var descriptorCache sync.Map // reflect.Type -> *TypeDescriptor

// DescriptorOf returns the cached TypeDescriptor for a struct type, building
// it on first use.
func DescriptorOf(t reflect.Type) (*TypeDescriptor, error) {
	if cached, ok := descriptorCache.Load(t); ok {
		return cached.(*TypeDescriptor), nil
	}

	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%s is not a struct: %w", t, errs.ErrUnsupportedTarget)
	}

	desc, err := buildDescriptor(t)
	if err != nil {
		return nil, err
	}

	actual, _ := descriptorCache.LoadOrStore(t, desc)

	return actual.(*TypeDescriptor), nil
}

func buildDescriptor(t reflect.Type) (*TypeDescriptor, error) {
	desc := &TypeDescriptor{
		Type:   t,
		byName: make(map[string]*FieldDescriptor),
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		name := sf.Name
		order := 0

		tag, hasTag := sf.Tag.Lookup(TagName)
		if hasTag {
			if tag == "-" {
				continue
			}
			parsedName, parsedOrder, err := parseTag(tag)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", t, sf.Name, err)
			}
			if parsedName != "" {
				name = parsedName
			}
			order = parsedOrder
		}

		if _, dup := desc.byName[name]; dup {
			return nil, fmt.Errorf("field %s.%s (wire name %q): %w", t, sf.Name, name, errs.ErrDuplicateField)
		}

		desc.Fields = append(desc.Fields, FieldDescriptor{
			Name:  name,
			Order: order,
			Index: sf.Index,
			Type:  sf.Type,
		})
		desc.byName[name] = nil // placeholder, repointed after sorting
	}

	sort.SliceStable(desc.Fields, func(i, j int) bool {
		if desc.Fields[i].Order != desc.Fields[j].Order {
			return desc.Fields[i].Order < desc.Fields[j].Order
		}

		return desc.Fields[i].Name < desc.Fields[j].Name
	})

	desc.names = make([]string, len(desc.Fields))
	for i := range desc.Fields {
		desc.byName[desc.Fields[i].Name] = &desc.Fields[i]
		desc.names[i] = desc.Fields[i].Name
	}

	return desc, nil
}

// parseTag splits a keypack tag into wire name and options.
func parseTag(tag string) (name string, order int, err error) {
	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, opt := range parts[1:] {
		switch {
		case strings.HasPrefix(opt, "order="):
			order, err = strconv.Atoi(strings.TrimPrefix(opt, "order="))
			if err != nil {
				return "", 0, fmt.Errorf("invalid order in tag %q: %w", tag, err)
			}
		case opt == "":
		default:
			return "", 0, fmt.Errorf("unknown tag option %q", opt)
		}
	}

	return name, order, nil
}
