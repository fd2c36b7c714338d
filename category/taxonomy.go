package category

// Root categories.
const (
	RootEmissions = "Emissions"
	RootResources = "Resources"
)

// group is one level-1 category and the keys of its level-2 leaves.
type group struct {
	root   string
	label  string
	leaves []string
}

// taxonomy is the ILCD elementary flow categorization. Leaf keys are the lower-case
// labels offered to the extraction model; display labels are derived from them.
var taxonomy = []group{
	{
		root:  RootEmissions,
		label: "Emissions to water",
		leaves: []string{
			"emissions to fresh water",
			"emissions to sea water",
			"emissions to water, unspecified",
			"emissions to water, unspecified (long-term)",
		},
	},
	{
		root:  RootEmissions,
		label: "Emissions to soil",
		leaves: []string{
			"emissions to agricultural soil",
			"emissions to non-agricultural soil",
			"emissions to soil, unspecified",
			"emissions to soil, unspecified (long-term)",
		},
	},
	{
		root:  RootEmissions,
		label: "Emissions to air",
		leaves: []string{
			"emissions to urban air close to ground",
			"emissions to non-urban air or from high stacks",
			"emissions to lower stratosphere and upper troposphere",
			"emissions to air, unspecified",
			"emissions to air, unspecified (long-term)",
		},
	},
	{
		root:   RootResources,
		label:  "Resources from ground",
		leaves: resourceLeaves("ground"),
	},
	{
		root:   RootResources,
		label:  "Resources from water",
		leaves: resourceLeaves("water"),
	},
	{
		root:   RootResources,
		label:  "Resources from air",
		leaves: resourceLeaves("air"),
	},
	{
		root:  RootResources,
		label: "Resources from biosphere",
		leaves: []string{
			"renewable element resources from biosphere",
			"renewable energy resources from biosphere",
			"renewable material resources from biosphere",
			"renewable genetic resources from biosphere",
			"renewable resources from biosphere, unspecified",
		},
	},
}

// resourceLeaves lists the eight abiotic resource leaves for one medium.
func resourceLeaves(medium string) []string {
	return []string{
		"non-renewable material resources from " + medium,
		"non-renewable element resources from " + medium,
		"non-renewable energy resources from " + medium,
		"renewable element resources from " + medium,
		"renewable energy resources from " + medium,
		"renewable material resources from " + medium,
		"renewable resources from " + medium + ", unspecified",
		"non-renewable resources from " + medium + ", unspecified",
	}
}
