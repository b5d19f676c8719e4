// Package query flattens nested filter criteria into the bracket-indexed
// query parameters the research database expects.
//
// A [Filter] is an ordered list of named groups. Each group holds scalar
// values or single-level [Object] values:
//
//	f := query.New().
//		Add("behaviors", "Occupancy_Measurement").
//		Add("buildings", query.Fields("building_type", "Educational", "room_type", "Classroom"))
//
//	query.Flatten(f).Encode()
//	// behaviors%5B0%5D=Occupancy_Measurement&buildings%5B0%5D%5Bbuilding_type%5D=Educational&...
//
// Output order always follows insertion order, so identical filters
// produce identical URLs. Objects nested inside objects are not supported.
package query
