package codec

// Tag byte values, in ascending sort order (spec §4.1: "each get a
// distinct tag ordered so that within an attribute of homogeneous
// type the natural numeric/lexicographic order emerges"). sysMin and
// sysMax bracket every real tag so they work as unconditional
// wildcard bounds regardless of the attribute's declared value type
// (spec §3 Open Question, resolved here: type tags sort by tag first,
// value second — cross-type datoms under the same attribute are
// possible only via a schema bug, and in that case sort by tag).
const (
	tagSysMin byte = iota
	tagBytes
	tagString
	tagKeyword
	tagSymbol
	tagBool
	tagLong
	tagDouble
	tagInstant
	tagUUID
	tagRef
	tagSysMax
)
