package domain

// BuiltinExercises returns the default drawing catalog in round order.
func BuiltinExercises() []Exercise {
	return []Exercise{
		{
			ID:   "snowman",
			Name: "Draw a Snowman",
			Instructions: []InstructionNode{
				{Text: "Start at the top of the screen"},
				{Text: "Change pen color to black"},
				{
					Text:    "Repeat (3)",
					Control: "repeat",
					Children: []InstructionNode{
						{Text: "Start below the previous circle"},
						{Text: "Draw a circle larger than the previous one"},
						{
							Text:    "If this is the 1st circle added:",
							Control: "if",
							Children: []InstructionNode{
								{Text: "Draw two dots inside the circle"},
								{Text: "Change pen color to orange"},
								{Text: "Draw a triangle inside the circle"},
								{Text: "Change pen color to black"},
							},
						},
						{
							Text:    "If this is the 2nd circle added:",
							Control: "if",
							Children: []InstructionNode{
								{Text: "Change pen color to brown"},
								{Text: "Draw 2 lines pointing out of the circle on the left and right"},
								{Text: "Change pen color to black"},
							},
						},
					},
				},
			},
			Rules: []ValidationRule{
				{
					Label: "Has 3 circles stacked vertically",
					Check: "The image should contain 3 circles arranged vertically from top to bottom, with each circle being larger than the one above it",
				},
				{
					Label: "Has face features",
					Check: "The top circle should contain two black dots for eyes and an orange triangle for a nose",
				},
				{
					Label: "Has arms",
					Check: "The middle circle should have two brown lines extending outward horizontally from its sides",
				},
			},
		},
		{
			ID:   "house",
			Name: "Draw a House",
			Instructions: []InstructionNode{
				{Text: "Draw a square for the base"},
				{Text: "Draw a triangle on top for the roof"},
				{Text: "Add a rectangle for the door"},
				{Text: "Add two squares for windows"},
				{Text: "Draw a chimney on the roof"},
			},
			Rules: []ValidationRule{
				{
					Label: "Has basic house shape",
					Check: "The image should contain a square/rectangle base with a triangle on top forming a roof",
				},
				{
					Label: "Has door",
					Check: "There should be a rectangular door in the base of the house",
				},
				{
					Label: "Has windows",
					Check: "There should be at least two square/rectangular windows in the house",
				},
				{
					Label: "Has chimney",
					Check: "There should be a rectangular chimney on the sloped roof",
				},
			},
		},
		{
			ID:   "rocket",
			Name: "Draw a Rocket",
			Instructions: []InstructionNode{
				{Text: "Draw a tall rectangle for the body"},
				{Text: "Draw a triangle on top for the nose cone"},
				{
					Text:    "Repeat (2)",
					Control: "repeat",
					Children: []InstructionNode{
						{Text: "Draw a small triangle fin at the bottom, one on each side"},
					},
				},
				{Text: "Change pen color to red"},
				{Text: "Draw flames below the body"},
			},
			Rules: []ValidationRule{
				{
					Label: "Has rocket body",
					Check: "The image should contain a tall rectangle with a triangle on top forming a nose cone",
				},
				{
					Label: "Has fins",
					Check: "There should be two triangular fins at the bottom sides of the rectangle",
				},
				{
					Label: "Has flames",
					Check: "There should be red or orange flames drawn below the rocket body",
				},
			},
		},
	}
}
