package cooking

import (
	"context"
	"encoding/json"
	"fmt"
)

// Ingredient is one fridge item offered to the model.
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// Generator defines the interface for recipe generation
type Generator interface {
	// GenerateRecipes suggests recipes using the given ingredients
	GenerateRecipes(ctx context.Context, ingredients []Ingredient) (string, error)
	// Close closes the generator and releases resources
	Close() error
}

// recipePrompt is the shared prompt used by all LLM providers; the %s slot
// receives the ingredient list as JSON
const recipePrompt = `You are a helpful cooking assistant. The user's fridge contains the following ingredients, given as a JSON list with quantities:

%s

Suggest up to three recipes the user can cook right now. For each recipe give:

1. A short name
2. The ingredients used, with amounts that fit what the fridge holds
3. Brief preparation steps

Prefer recipes that use up ingredients with larger quantities. You may assume pantry staples (salt, pepper, oil, flour, water) are available. Answer in plain text without markdown tables.`

// buildPrompt renders the shared recipe prompt
func buildPrompt(ingredients []Ingredient) (string, error) {
	data, err := json.Marshal(ingredients)
	if err != nil {
		return "", fmt.Errorf("marshaling ingredients: %w", err)
	}
	return fmt.Sprintf(recipePrompt, string(data)), nil
}
