package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/example/foodtracker/internal/auth"
)

// priorityWindowDays marks pantry items close enough to expiry to be used first.
const priorityWindowDays = 3

const maxSuggestions = 5

type Recipe struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Ingredients         []string `json:"ingredients"`
	Instructions        []string `json:"instructions"`
	ImageURL            string   `json:"imageUrl"`
	PrepTime            int      `json:"prepTime"`
	CookTime            int      `json:"cookTime"`
	Servings            int      `json:"servings"`
	Difficulty          string   `json:"difficulty"`
	MatchingIngredients []string `json:"matchingIngredients,omitempty"`
	MatchScore          float64  `json:"matchScore,omitempty"`
}

// recipeCatalog stands in for an external recipe provider.
var recipeCatalog = []Recipe{
	{
		ID:          "1",
		Title:       "Quick Pasta with Fresh Vegetables",
		Ingredients: []string{"pasta", "tomato", "garlic", "olive oil"},
		Instructions: []string{
			"Boil pasta according to package instructions",
			"Sauté garlic in olive oil",
			"Add chopped tomatoes and cook for 5 minutes",
			"Combine with pasta and serve",
		},
		ImageURL: "https://example.com/pasta.jpg",
		PrepTime: 15, CookTime: 20, Servings: 4, Difficulty: "easy",
	},
	{
		ID:          "2",
		Title:       "Simple Stir-Fry",
		Ingredients: []string{"chicken", "vegetables", "soy sauce", "garlic"},
		Instructions: []string{
			"Cut chicken into small pieces",
			"Stir-fry chicken until golden",
			"Add vegetables and garlic",
			"Season with soy sauce and serve",
		},
		ImageURL: "https://example.com/stirfry.jpg",
		PrepTime: 10, CookTime: 15, Servings: 2, Difficulty: "easy",
	},
	{
		ID:          "3",
		Title:       "Fresh Fruit Smoothie",
		Ingredients: []string{"banana", "milk", "honey", "yogurt"},
		Instructions: []string{
			"Blend banana, milk, and yogurt",
			"Add honey to taste",
			"Serve immediately",
		},
		ImageURL: "https://example.com/smoothie.jpg",
		PrepTime: 5, CookTime: 0, Servings: 1, Difficulty: "easy",
	},
}

// suggestRecipes ranks catalog recipes by the share of their ingredients
// present in pantry. Recipes with no match are dropped.
func suggestRecipes(pantry map[string]bool) []Recipe {
	var out []Recipe
	for _, rec := range recipeCatalog {
		var matching []string
		for _, ing := range rec.Ingredients {
			if pantry[ing] {
				matching = append(matching, ing)
			}
		}
		if len(matching) == 0 {
			continue
		}
		rec.MatchingIngredients = matching
		rec.MatchScore = float64(len(matching)) / float64(len(rec.Ingredients))
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MatchScore > out[j].MatchScore })
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

func addIngredients(pantry map[string]bool, names []string) {
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			pantry[n] = true
		}
	}
}

// HandleRecipeSuggestions matches the catalog against the caller's pantry
// plus any ingredients passed explicitly. Anonymous callers only get
// matches for the ingredients they pass.
func (a *App) HandleRecipeSuggestions(w http.ResponseWriter, r *http.Request) {
	pantry := map[string]bool{}
	if r.Method == http.MethodPost {
		var in []string
		if !decodeJSON(w, r, &in, true) {
			return
		}
		addIngredients(pantry, in)
	}
	if q := r.URL.Query().Get("ingredients"); q != "" {
		addIngredients(pantry, strings.Split(q, ","))
	}

	priority := []string{}
	if ident, ok := auth.IdentityFromContext(r.Context()); ok {
		items, err := a.Store.ListFoodItems(r.Context(), ident.SubjectID, FoodFilter{})
		if err != nil {
			a.Logger.ErrorContext(r.Context(), "load pantry failed", "error", err)
			writeInternal(w, "Failed to get recipe suggestions")
			return
		}
		soon := a.now().AddDate(0, 0, priorityWindowDays)
		for _, it := range items {
			name := strings.ToLower(strings.TrimSpace(it.Name))
			pantry[name] = true
			if !it.ExpirationDate.After(soon) {
				priority = append(priority, name)
			}
		}
	}

	recipes := suggestRecipes(pantry)
	if recipes == nil {
		recipes = []Recipe{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":             true,
		"data":                recipes,
		"priorityIngredients": priority,
		"message":             fmt.Sprintf("Found %d recipe suggestions", len(recipes)),
	})
}

func (a *App) HandleRecipeSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("query")))
	if q == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "query is required")
		return
	}
	results := []Recipe{}
	for _, rec := range recipeCatalog {
		if strings.Contains(strings.ToLower(rec.Title), q) || containsSubstring(rec.Ingredients, q) {
			results = append(results, rec)
		}
	}
	writeMessage(w, http.StatusOK, results, fmt.Sprintf("Found %d recipes for '%s'", len(results), q))
}

func containsSubstring(list []string, q string) bool {
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}
