/*
Package pattern provides structured message addresses and a matcher that maps them to registered values.

A [Pattern] is a set of key/value pairs like {role: "user", cmd: "create"}.
Every Pattern has a canonical string form used as its identity, so {cmd: "create", role: "user"} and {role: "user", cmd: "create"} are the same Pattern.

# Matching

An entry registered with pattern E matches a query Q when every key:value pair of E is also in Q.
That means the empty Pattern matches everything, and a query with extra keys still finds less specific entries.

	m := pattern.NewComparableMatcher[string]()
	m.Add(pattern.Pattern{"role": "user"}, "A")
	m.Add(pattern.Pattern{"role": "user", "cmd": "create"}, "B")
	m.Find(pattern.Pattern{"role": "user", "cmd": "create", "id": 5}) // [B A]

Results are ordered most specific first, so the first value is the best match.
Comparison is structural, so "foo:bar" never matches "foo:barbaz".

# Values

Values are compared by their canonical rendering, which means 1, 1.0, and "1" are the same value.
Nil and NaN both render as "null".
Non-scalar values all render as the same placeholder, so use [Pattern.Validate] to reject them before they're used as an address.
*/
package pattern
