package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// listing mirrors one record of the homescout scrape response.
type listing struct {
	Price   string `json:"price"`
	Address string `json:"address"`
}

// errorResponse mirrors the homescout error body.
type errorResponse struct {
	Error string `json:"error"`
}

func main() {
	apiURL := os.Getenv("HOMESCOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:3000"
	}

	s := server.NewMCPServer(
		"homescout",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape_listings",
		mcp.WithDescription("Search a real-estate listing site for a city and state and return the price and address of every listing found. Runs a headless browser through all result pages, so it can take a few minutes."),
		mcp.WithString("city",
			mcp.Required(),
			mcp.Description("City name, e.g. 'New York'"),
		),
		mcp.WithString("state",
			mcp.Required(),
			mcp.Description("State, e.g. 'NY'"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Stop after this many result pages (1-100). Defaults to the server's bound."),
		),
	)

	s.AddTool(scrapeTool, handleScrapeListings(strings.TrimRight(apiURL, "/")))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleScrapeListings(apiURL string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 6 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		city, err := request.RequireString("city")
		if err != nil {
			return mcp.NewToolResultError("city is required"), nil
		}
		state, err := request.RequireString("state")
		if err != nil {
			return mcp.NewToolResultError("state is required"), nil
		}

		q := url.Values{}
		q.Set("city", city)
		q.Set("state", state)
		if maxPages := request.GetInt("max_pages", 0); maxPages > 0 {
			q.Set("max_pages", strconv.Itoa(maxPages))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/scrape?"+q.Encode(), nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		if resp.StatusCode != http.StatusOK {
			var e errorResponse
			if err := json.Unmarshal(respBody, &e); err == nil && e.Error != "" {
				return mcp.NewToolResultError(fmt.Sprintf("[%d] %s", resp.StatusCode, e.Error)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("API returned HTTP %d", resp.StatusCode)), nil
		}

		var listings []listing
		if err := json.Unmarshal(respBody, &listings); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		return mcp.NewToolResultText(formatListings(city, state, listings)), nil
	}
}

// formatListings renders listings as a numbered plain-text list.
func formatListings(city, state string, listings []listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d listings for %s, %s\n", len(listings), city, state)
	for i, l := range listings {
		fmt.Fprintf(&b, "\n%d. %s - %s", i+1, l.Price, l.Address)
	}
	return b.String()
}
