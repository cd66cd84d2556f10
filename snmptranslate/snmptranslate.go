// Package snmptranslate turns numeric OIDs into MIB object names.
//
// A Translator starts with the names every trap receiver needs (the
// SNMPv2-MIB system and trap objects, the generic traps and the IF-MIB
// interface columns) and can learn more from MIB files:
//
//	tr := snmptranslate.New()
//	if _, err := tr.LoadDir("/usr/share/snmp/mibs"); err != nil {
//		return err
//	}
//	tr.Translate(snmppdu.MustParseOID("1.3.6.1.2.1.2.2.1.1.3")) // "ifIndex.3"
//
// Lookups use the longest named prefix, so table instances render as the
// column name followed by the instance suffix.
package snmptranslate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

// Entry is one named OID.
type Entry struct {
	OID    snmppdu.OID
	Name   string
	Module string
}

// node is one sub-identifier in the OID trie. entry is nil for
// intermediate nodes that have no name of their own.
type node struct {
	children map[uint32]*node
	entry    *Entry
}

// Translator maps OIDs to names. It is safe for concurrent use.
type Translator struct {
	mu     sync.RWMutex
	root   *node
	names  map[string]snmppdu.OID
	size   int
	loaded map[string]struct{}
}

// New returns a Translator seeded with the built-in names.
func New() *Translator {
	t := &Translator{
		root:   &node{},
		names:  make(map[string]snmppdu.OID),
		loaded: make(map[string]struct{}),
	}
	for _, e := range builtin {
		t.add(snmppdu.MustParseOID(e.oid), e.name, e.module)
	}
	return t
}

// Add names oid. A later Add for the same OID replaces the name.
func (t *Translator) Add(oid snmppdu.OID, name, module string) error {
	if len(oid) == 0 {
		return errors.New("empty OID")
	}
	if name == "" {
		return errors.New("empty name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.add(oid, name, module)
	return nil
}

func (t *Translator) add(oid snmppdu.OID, name, module string) {
	n := t.root
	for _, sub := range oid {
		child, ok := n.children[sub]
		if !ok {
			if n.children == nil {
				n.children = make(map[uint32]*node)
			}
			child = &node{}
			n.children[sub] = child
		}
		n = child
	}
	if n.entry == nil {
		t.size++
	}
	stored := append(snmppdu.OID(nil), oid...)
	n.entry = &Entry{OID: stored, Name: name, Module: module}
	t.names[name] = stored
}

// Lookup returns the entry with the longest OID that prefixes oid, and the
// remaining sub-identifiers.
func (t *Translator) Lookup(oid snmppdu.OID) (Entry, snmppdu.OID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *Entry
	depth := 0
	n := t.root
	for i, sub := range oid {
		child, ok := n.children[sub]
		if !ok {
			break
		}
		n = child
		if n.entry != nil {
			best = n.entry
			depth = i + 1
		}
	}
	if best == nil {
		return Entry{}, nil, false
	}
	return *best, oid[depth:], true
}

// Resolve returns the OID registered under name.
func (t *Translator) Resolve(name string) (snmppdu.OID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	oid, ok := t.names[name]
	return oid, ok
}

// Translate renders oid as name or name.suffix, falling back to dotted
// notation when no prefix is known.
func (t *Translator) Translate(oid snmppdu.OID) string {
	entry, suffix, ok := t.Lookup(oid)
	if !ok {
		return oid.String()
	}
	if len(suffix) == 0 {
		return entry.Name
	}
	return entry.Name + "." + suffix.String()
}

// Len returns the number of named OIDs.
func (t *Translator) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// LoadDir loads every MIB file under dir and returns how many definitions
// were added. Files that fail to parse are skipped and reported together in
// the returned error.
func (t *Translator) LoadDir(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("MIB directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("MIB directory %s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isMIBFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk MIB directory %s: %w", dir, err)
	}
	sort.Strings(files)

	// MIBs import from each other; parse everything first so definitions
	// can resolve against parents from any file.
	var defs []definition
	var errs []error
	for _, path := range files {
		if t.isLoaded(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, parseMIB(string(data))...)
	}

	added := t.resolve(defs)
	t.mu.Lock()
	for _, path := range files {
		t.loaded[path] = struct{}{}
	}
	t.mu.Unlock()

	return added, errors.Join(errs...)
}

// LoadMIB loads a single MIB file and returns how many definitions were
// added. Loading the same path twice is a no-op.
func (t *Translator) LoadMIB(path string) (int, error) {
	if t.isLoaded(path) {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read MIB %s: %w", path, err)
	}
	defs := parseMIB(string(data))
	if len(defs) == 0 {
		return 0, fmt.Errorf("no OID definitions in %s", path)
	}

	added := t.resolve(defs)
	t.mu.Lock()
	t.loaded[path] = struct{}{}
	t.mu.Unlock()
	return added, nil
}

func (t *Translator) isLoaded(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.loaded[path]
	return ok
}

// resolve adds every definition whose parent chain is known. Definitions
// may reference parents defined later, so it loops until nothing changes.
func (t *Translator) resolve(defs []definition) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	pending := defs
	for len(pending) > 0 {
		var next []definition
		for _, d := range pending {
			parent, ok := t.names[d.parent]
			if !ok {
				next = append(next, d)
				continue
			}
			oid := append(append(snmppdu.OID(nil), parent...), d.subs...)
			t.add(oid, d.name, d.module)
			added++
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	return added
}

// definition is an unresolved "name ... ::= { parent 1 2 }" assignment.
type definition struct {
	name   string
	module string
	parent string
	subs   []uint32
}

var (
	commentRe    = regexp.MustCompile(`--[^\n]*`)
	importsRe    = regexp.MustCompile(`(?s)\bIMPORTS\b.*?;`)
	moduleRe     = regexp.MustCompile(`(?m)^\s*([A-Z][\w-]*)\s+DEFINITIONS\s*::=\s*BEGIN`)
	definitionRe = regexp.MustCompile(`(?s)\b([a-z][\w-]*)\s+(?:OBJECT-TYPE|NOTIFICATION-TYPE|MODULE-IDENTITY|OBJECT-IDENTITY|OBJECT-GROUP|NOTIFICATION-GROUP|OBJECT\s+IDENTIFIER)\b[^:]*?(?:"[^"]*"[^:]*?)*::=\s*\{([^}]*)\}`)
	componentRe  = regexp.MustCompile(`^(?:[a-z][\w-]*\()?(\d+)\)?$`)
)

// parseMIB extracts OID assignments from SMIv1/SMIv2 module text.
func parseMIB(text string) []definition {
	text = commentRe.ReplaceAllString(text, "")
	module := ""
	if m := moduleRe.FindStringSubmatch(text); m != nil {
		module = m[1]
	}
	text = importsRe.ReplaceAllString(text, "")

	var defs []definition
	for _, m := range definitionRe.FindAllStringSubmatch(text, -1) {
		fields := strings.Fields(m[2])
		if len(fields) < 2 {
			continue
		}
		d := definition{name: m[1], module: module, parent: fields[0]}
		valid := true
		for _, f := range fields[1:] {
			c := componentRe.FindStringSubmatch(f)
			if c == nil {
				valid = false
				break
			}
			n, err := strconv.ParseUint(c[1], 10, 32)
			if err != nil {
				valid = false
				break
			}
			d.subs = append(d.subs, uint32(n))
		}
		if valid {
			defs = append(defs, d)
		}
	}
	return defs
}

func isMIBFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mib", ".my", ".txt", "":
		return true
	}
	return false
}
