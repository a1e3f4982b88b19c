// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// structInfo stores the "db" tagged fields of a struct type.
type structInfo struct {
	structType reflect.Type

	// Ordered list of tags.
	tags []string

	tagToField map[string]*structField
}

// field returns the field tagged with the column name, ignoring case.
func (si *structInfo) field(column string) (*structField, bool) {
	if f, ok := si.tagToField[column]; ok {
		return f, true
	}
	for _, tag := range si.tags {
		if strings.EqualFold(tag, column) {
			return si.tagToField[tag], true
		}
	}
	return nil, false
}

// structInfoCache caches type reflection information across queries.
var structInfoCacheMutex sync.RWMutex
var structInfoCache = make(map[reflect.Type]*structInfo)

// getStructInfo returns the tagged fields of the struct type t, generating
// and caching them as required.
func getStructInfo(t reflect.Type) (*structInfo, error) {
	structInfoCacheMutex.RLock()
	info, found := structInfoCache[t]
	structInfoCacheMutex.RUnlock()
	if found {
		return info, nil
	}

	if t.Kind() != reflect.Struct {
		return nil, errors.Errorf("internal error: cannot obtain type information for non-struct type %s", t)
	}
	info = &structInfo{
		structType: t,
		tagToField: make(map[string]*structField),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		// Fields without a "db" tag are not scanned into.
		tag := f.Tag.Get("db")
		if tag == "" {
			continue
		}
		if !f.IsExported() {
			return nil, errors.Errorf("field %q of struct %s not exported", f.Name, t.Name())
		}
		tag, err := parseTag(tag)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot parse tag for field %s.%s", t.Name(), f.Name)
		}
		if _, ok := info.tagToField[tag]; ok {
			return nil, errors.Errorf("db tag %q appears more than once in struct %s", tag, t.Name())
		}
		info.tags = append(info.tags, tag)
		info.tagToField[tag] = &structField{
			name:       f.Name,
			index:      i,
			tag:        tag,
			structType: t,
			fieldType:  f.Type,
		}
	}
	sort.Strings(info.tags)

	structInfoCacheMutex.Lock()
	structInfoCache[t] = info
	structInfoCacheMutex.Unlock()
	return info, nil
}

// Tags returns the sorted "db" tags of a struct type.
func Tags(t reflect.Type) ([]string, error) {
	info, err := getStructInfo(t)
	if err != nil {
		return nil, err
	}
	return info.tags, nil
}

var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns the column name.
func parseTag(tag string) (string, error) {
	options := strings.Split(tag, ",")
	if len(options) > 1 {
		return "", errors.Errorf("unsupported flag %q in tag %q", options[1], tag)
	}
	name := options[0]
	if len(name) == 0 {
		return "", errors.New("empty db tag")
	}
	if !validColNameRx.MatchString(name) {
		return "", errors.Errorf("invalid column name in 'db' tag: %q", name)
	}
	return name, nil
}
