package sheets

import (
	"context"
	"fmt"

	"wp_schema_sync/internal/config"
	"wp_schema_sync/internal/retry"

	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Client wraps the Sheets service with the retry settings of the boundary.
type Client struct {
	service *sheets.Service
	read    retry.Config
	write   retry.Config
}

// NewClient builds a client. An empty credentialsFile falls back to the
// options given (or application default credentials when there are none).
func NewClient(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*Client, error) {
	if credentialsFile != "" {
		opts = append([]option.ClientOption{option.WithCredentialsFile(credentialsFile)}, opts...)
	}
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Client{
		service: service,
		read:    config.DefaultResilienceConfig.SheetRead,
		write:   config.DefaultResilienceConfig.SheetWrite,
	}, nil
}

// WithRetry replaces the retry settings, mostly for tests.
func (c *Client) WithRetry(read, write retry.Config) *Client {
	c.read = read
	c.write = write
	return c
}

// SheetTitles lists the tab names of a spreadsheet in order.
func (c *Client) SheetTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	resp, err := retry.WithRetry(ctx, c.read, func(ctx context.Context) (*sheets.Spreadsheet, error) {
		return c.service.Spreadsheets.Get(spreadsheetID).
			Fields("sheets.properties.title").
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	titles := make([]string, 0, len(resp.Sheets))
	for _, sheet := range resp.Sheets {
		if sheet.Properties != nil {
			titles = append(titles, sheet.Properties.Title)
		}
	}
	return titles, nil
}

// ReadSheet returns the values of a range.
func (c *Client) ReadSheet(ctx context.Context, spreadsheetID, range_ string) ([][]interface{}, error) {
	resp, err := retry.WithRetry(ctx, c.read, func(ctx context.Context) (*sheets.ValueRange, error) {
		return c.service.Spreadsheets.Values.Get(spreadsheetID, range_).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	return resp.Values, nil
}

// AddSheet creates a tab.
func (c *Client) AddSheet(ctx context.Context, spreadsheetID, title string) error {
	request := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}

	err := retry.Do(ctx, c.write, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.BatchUpdate(spreadsheetID, request).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add sheet %q: %w", title, err)
	}

	log.Debug().Str("title", title).Msg("Added sheet")
	return nil
}

// ReplaceRange clears a range and writes values from its top-left cell.
// Values are stored as entered so URLs and script tags are not interpreted.
func (c *Client) ReplaceRange(ctx context.Context, spreadsheetID, range_ string, values [][]interface{}) error {
	err := retry.Do(ctx, c.write, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.Values.Clear(spreadsheetID, range_, &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear range: %w", err)
	}

	valueRange := &sheets.ValueRange{
		Values: values,
	}
	err = retry.Do(ctx, c.write, func(ctx context.Context) error {
		_, err := c.service.Spreadsheets.Values.Update(spreadsheetID, range_, valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update range: %w", err)
	}

	return nil
}
