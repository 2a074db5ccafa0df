package binary

import "fmt"

// sectionID is the position of a known section in the presence bitmap. The order is also the canonical encoding
// order used by EncodeModule.
type sectionID uint8

const (
	sectionSignatures sectionID = iota
	sectionImportTable
	sectionFunctionSignatures
	sectionTable
	sectionMemory
	sectionGlobals
	sectionExportTable
	sectionStartFunction
	sectionElements
	sectionFunctionBodies
	sectionDataSegments
	sectionNames
	sectionEnd
	sectionCount
)

// Section names as they appear in the binary format.
const (
	SectionNameSignatures         = "signatures"
	SectionNameImportTable        = "import_table"
	SectionNameFunctionSignatures = "function_signatures"
	SectionNameFunctionBodies     = "function_bodies"
	SectionNameTable              = "table"
	SectionNameElements           = "elements"
	SectionNameMemory             = "memory"
	SectionNameGlobals            = "globals"
	SectionNameDataSegments       = "data_segments"
	SectionNameExportTable        = "export_table"
	SectionNameStartFunction      = "start_function"
	SectionNameNames              = "names"
	SectionNameEnd                = "end"
)

var sectionNameStrings = [sectionCount]string{
	sectionSignatures:         SectionNameSignatures,
	sectionImportTable:        SectionNameImportTable,
	sectionFunctionSignatures: SectionNameFunctionSignatures,
	sectionTable:              SectionNameTable,
	sectionMemory:             SectionNameMemory,
	sectionGlobals:            SectionNameGlobals,
	sectionExportTable:        SectionNameExportTable,
	sectionStartFunction:      SectionNameStartFunction,
	sectionElements:           SectionNameElements,
	sectionFunctionBodies:     SectionNameFunctionBodies,
	sectionDataSegments:       SectionNameDataSegments,
	sectionNames:              SectionNameNames,
	sectionEnd:                SectionNameEnd,
}

var sectionIDs = func() map[string]sectionID {
	ret := make(map[string]sectionID, sectionCount)
	for id, name := range sectionNameStrings {
		ret[name] = sectionID(id)
	}
	return ret
}()

func (id sectionID) String() string {
	if id < sectionCount {
		return sectionNameStrings[id]
	}
	return fmt.Sprintf("section(%d)", id)
}

// sectionSet is the presence bitmap of decoded sections.
type sectionSet uint16

func (s sectionSet) has(id sectionID) bool {
	return s&(1<<id) != 0
}

func (s *sectionSet) add(id sectionID) {
	*s |= 1 << id
}

// sectionRequires lists sections that must already be present when a section is decoded, because it references
// their index spaces.
var sectionRequires = [sectionCount][]sectionID{
	sectionFunctionSignatures: {sectionSignatures},
	sectionFunctionBodies:     {sectionFunctionSignatures},
}

// sectionPrecludes lists sections that must not be present yet, because their index spaces would already be
// extended past the imports.
var sectionPrecludes = [sectionCount][]sectionID{
	sectionImportTable: {sectionFunctionSignatures, sectionTable, sectionMemory, sectionGlobals},
}

// checkOrder returns an error message if id cannot be decoded given what was decoded so far.
func (s sectionSet) checkOrder(id sectionID) string {
	if s.has(id) {
		return fmt.Sprintf("duplicate section %s", id)
	}
	for _, req := range sectionRequires[id] {
		if !s.has(req) {
			return fmt.Sprintf("section %s requires %s", id, req)
		}
	}
	for _, pre := range sectionPrecludes[id] {
		if s.has(pre) {
			return fmt.Sprintf("section %s must precede %s", id, pre)
		}
	}
	return ""
}
