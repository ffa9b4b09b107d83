package transfer

import (
	"context"
	"fmt"

	"github.com/NiksRock/GDriveBridge/internal/drive"
	"github.com/NiksRock/GDriveBridge/pkg/log"
)

// Risk flags attached to a scan result and carried onto the job.
const (
	FlagItemLimitRisk  = "ITEM_LIMIT_RISK"
	FlagItemLimitBlock = "ITEM_LIMIT_BLOCK"
	FlagDailyQuotaRisk = "DAILY_QUOTA_RISK"
)

// ScanResult summarizes a read-only walk of the selected source roots.
type ScanResult struct {
	TotalFiles     int64    `json:"totalFiles"`
	TotalFolders   int64    `json:"totalFolders"`
	TotalItems     int64    `json:"totalItems"`
	EstimatedBytes int64    `json:"estimatedBytes"`
	MaxDepth       int      `json:"maxDepth"`
	RiskFlags      []string `json:"riskFlags"`
	Warnings       []string `json:"warnings"`
	CanStart       bool     `json:"canStart"`
}

// ScannerConfig carries the thresholds a scan is judged against.
type ScannerConfig struct {
	ItemWarnLimit  int64
	ItemBlockLimit int64
	DailyByteCap   int64
	MaxDepth       int
}

func (c *ScannerConfig) defaults() {
	if c.ItemWarnLimit <= 0 {
		c.ItemWarnLimit = 480_000
	}
	if c.ItemBlockLimit <= 0 {
		c.ItemBlockLimit = 495_000
	}
	if c.DailyByteCap <= 0 {
		c.DailyByteCap = 700 << 30
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 1000
	}
}

// Scanner estimates a transfer's size and surfaces risks before any job
// is created. It performs remote reads only and persists nothing.
type Scanner struct {
	cfg ScannerConfig
	log log.LoggerService
}

func NewScanner(cfg ScannerConfig, logger log.LoggerService) *Scanner {
	cfg.defaults()
	return &Scanner{cfg: cfg, log: logger.Named("prescan")}
}

// Scan walks the roots and evaluates the result against the account item
// ceiling and the daily byte cap. A result with CanStart false means the
// destination would be pushed over the hard item limit and the transfer
// must not be created.
func (s *Scanner) Scan(ctx context.Context, client drive.Client, rootIDs []string) (*ScanResult, error) {
	result := &ScanResult{
		RiskFlags: []string{},
		Warnings:  []string{},
		CanStart:  true,
	}

	for _, rootID := range rootIDs {
		if err := s.walk(ctx, client, rootID, 0, result); err != nil {
			return nil, fmt.Errorf("scan of root '%s' failed: %w", rootID, err)
		}
	}
	result.TotalItems = result.TotalFiles + result.TotalFolders

	if result.TotalItems >= s.cfg.ItemBlockLimit {
		result.RiskFlags = append(result.RiskFlags, FlagItemLimitBlock)
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Selection contains %d items, over the %d hard ceiling; transfer cannot start",
			result.TotalItems, s.cfg.ItemBlockLimit))
		result.CanStart = false
	} else if result.TotalItems >= s.cfg.ItemWarnLimit {
		result.RiskFlags = append(result.RiskFlags, FlagItemLimitRisk)
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Selection contains %d items, close to the %d account ceiling",
			result.TotalItems, s.cfg.ItemBlockLimit))
	}

	if result.EstimatedBytes >= s.cfg.DailyByteCap {
		result.RiskFlags = append(result.RiskFlags, FlagDailyQuotaRisk)
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"Selection is %d bytes, past the %d daily transfer cap; the job will auto-pause at least once",
			result.EstimatedBytes, s.cfg.DailyByteCap))
	}

	s.log.Info("Scan: %d files, %d folders, %d bytes, depth %d, canStart=%t",
		result.TotalFiles, result.TotalFolders, result.EstimatedBytes, result.MaxDepth, result.CanStart)
	return result, nil
}

// CheckDestination counts the destination folder's existing direct
// children and judges whether inserting more roots would push it over
// the item ceiling. Returns the warnings to carry onto the job and
// whether the insertion may proceed.
func (s *Scanner) CheckDestination(ctx context.Context, client drive.Client, folderID string, inserting int64) ([]string, bool, error) {
	var children int64
	pageToken := ""
	for {
		page, err := client.ListChildren(ctx, folderID, pageToken)
		if err != nil {
			return nil, false, fmt.Errorf("failed to list destination folder '%s': %w", folderID, err)
		}
		children += int64(len(page.Files))
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	projected := children + inserting
	switch {
	case projected >= s.cfg.ItemBlockLimit:
		return []string{fmt.Sprintf(
			"Destination folder holds %d items; inserting %d more exceeds the %d ceiling",
			children, inserting, s.cfg.ItemBlockLimit)}, false, nil
	case projected >= s.cfg.ItemWarnLimit:
		return []string{fmt.Sprintf(
			"Destination folder holds %d items; inserting %d more approaches the %d ceiling",
			children, inserting, s.cfg.ItemBlockLimit)}, true, nil
	}
	return nil, true, nil
}

func (s *Scanner) walk(ctx context.Context, client drive.Client, fileID string, depth int, result *ScanResult) error {
	if depth > s.cfg.MaxDepth {
		return fmt.Errorf("tree depth exceeds ceiling of %d at '%s'", s.cfg.MaxDepth, fileID)
	}
	if depth > result.MaxDepth {
		result.MaxDepth = depth
	}

	meta, err := client.GetMetadata(ctx, fileID)
	if err != nil {
		return err
	}

	if !meta.IsFolder() {
		result.TotalFiles++
		result.EstimatedBytes += meta.Size
		return nil
	}
	result.TotalFolders++

	pageToken := ""
	for {
		page, err := client.ListChildren(ctx, meta.ID, pageToken)
		if err != nil {
			return err
		}
		for _, child := range page.Files {
			if err := s.walk(ctx, client, child.ID, depth+1, result); err != nil {
				return err
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}
