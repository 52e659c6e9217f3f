package tools

// Server group identifiers. Each maps to a tools.servers config entry.
const (
	ServerInventory = "inventory"
	ServerRecipe    = "recipe"
	ServerRAG       = "rag"
	ServerWeb       = "web"
	ServerHistory   = "history"
)

// Tool names as the planner emits them.
const (
	ToolGetInventory    = "inventory_service.get_inventory"
	ToolAddInventory    = "inventory_service.add_inventory"
	ToolUpdateInventory = "inventory_service.update_inventory"
	ToolDeleteInventory = "inventory_service.delete_inventory"

	ToolGenerateMenuPlan = "recipe_service.generate_menu_plan"
	ToolProposeMainDish  = "recipe_service.propose_main_dish"
	ToolProposeSideDish  = "recipe_service.propose_side_dish"
	ToolProposeSoup      = "recipe_service.propose_soup"

	ToolSearchMenuFromRAG = "rag_service.search_menu_from_rag"

	ToolSearchRecipesFromWeb = "web_service.search_recipes_from_web"

	ToolAddRecipeHistory = "history_service.add_recipe_history"
)

// Catalog returns the static tool table loaded at startup.
func Catalog() []*Descriptor {
	return []*Descriptor{
		{
			Name:   ToolGetInventory,
			Server: ServerInventory,
			Params: map[string]ParamSpec{
				"user_id": {Required: true, Type: "string"},
			},
		},
		{
			Name:          ToolAddInventory,
			Server:        ServerInventory,
			SideEffecting: true,
			Params: map[string]ParamSpec{
				"item_name": {Required: true, Type: "string"},
				"quantity":  {Required: true, Type: "number"},
				"unit":      {Required: false, Type: "string"},
			},
		},
		{
			Name:               ToolUpdateInventory,
			Server:             ServerInventory,
			SideEffecting:      true,
			MayReportAmbiguity: true,
			Params: map[string]ParamSpec{
				"item_identifier": {Required: true, Type: "string"},
				"updates":         {Required: true, Type: "object"},
				"strategy":        {Required: false, Type: "string"},
				"item_id":         {Required: false, Type: "string"},
			},
		},
		{
			Name:               ToolDeleteInventory,
			Server:             ServerInventory,
			SideEffecting:      true,
			MayReportAmbiguity: true,
			Params: map[string]ParamSpec{
				"item_identifier": {Required: true, Type: "string"},
				"strategy":        {Required: false, Type: "string"},
				"item_id":         {Required: false, Type: "string"},
			},
		},
		{
			Name:   ToolGenerateMenuPlan,
			Server: ServerRecipe,
			Params: map[string]ParamSpec{
				"ingredients": {Required: true, Type: "array"},
				"menu_type":   {Required: false, Type: "string"},
			},
		},
		{
			Name:   ToolProposeMainDish,
			Server: ServerRecipe,
			Params: map[string]ParamSpec{
				"ingredients":     {Required: true, Type: "array"},
				"main_ingredient": {Required: false, Type: "string"},
				"excluded_titles": {Required: false, Type: "array"},
				"menu_type":       {Required: false, Type: "string"},
			},
		},
		{
			Name:   ToolProposeSideDish,
			Server: ServerRecipe,
			Params: map[string]ParamSpec{
				"ingredients":      {Required: true, Type: "array"},
				"used_ingredients": {Required: false, Type: "array"},
				"excluded_titles":  {Required: false, Type: "array"},
				"menu_type":        {Required: false, Type: "string"},
			},
		},
		{
			Name:   ToolProposeSoup,
			Server: ServerRecipe,
			Params: map[string]ParamSpec{
				"ingredients":      {Required: true, Type: "array"},
				"used_ingredients": {Required: false, Type: "array"},
				"excluded_titles":  {Required: false, Type: "array"},
				"menu_type":        {Required: false, Type: "string"},
			},
		},
		{
			Name:   ToolSearchMenuFromRAG,
			Server: ServerRAG,
			Params: map[string]ParamSpec{
				"ingredients": {Required: true, Type: "array"},
				"menu_type":   {Required: false, Type: "string"},
			},
		},
		{
			Name:   ToolSearchRecipesFromWeb,
			Server: ServerWeb,
			Params: map[string]ParamSpec{
				"recipe_titles": {Required: true, Type: "array"},
			},
		},
		{
			Name:          ToolAddRecipeHistory,
			Server:        ServerHistory,
			SideEffecting: true,
			Params: map[string]ParamSpec{
				"user_id": {Required: true, Type: "string"},
				"title":   {Required: true, Type: "string"},
				"source":  {Required: true, Type: "string"},
				"url":     {Required: false, Type: "string"},
			},
		},
	}
}
