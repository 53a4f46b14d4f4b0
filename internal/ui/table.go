package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/roomdrop/roomdrop/internal/utils"
)

// FileTableItem is one row of the file table.
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
	IsDir bool
}

// FileTableView renders the files about to be sent.
func FileTableView(items []FileTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		icon := IconFile
		if item.IsDir {
			icon = IconFolder
		}
		rows = append(rows, []string{
			strconv.Itoa(item.Index),
			icon + " " + utils.TruncateString(item.Name, 50),
			utils.FormatSize(item.Size),
			utils.TruncateString(item.Type, 20),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Name", "Size", "Type").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

func RenderFileTable(items []FileTableItem) {
	fmt.Fprintln(Out, FileTableView(items))
}

// TransferSummary is the final report printed after a transfer ends.
type TransferSummary struct {
	Title    string
	Status   string
	File     string
	Size     int64
	Duration string
	Speed    string
}

func TransferSummaryView(s TransferSummary) string {
	t := prettytable.NewWriter()
	t.SetTitle(s.Title)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Status", s.Status},
		{"File", utils.TruncateString(s.File, 50)},
		{"Size", utils.FormatSize(s.Size)},
		{"Duration", s.Duration},
		{"Avg Speed", s.Speed},
	})
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.Style().Title.Colors = text.Colors{text.FgCyan, text.Bold}
	return t.Render()
}

func RenderTransferSummary(s TransferSummary) {
	fmt.Fprintln(Out, TransferSummaryView(s))
}

// RoomInfoView is the box shown to the host after a room is created.
func RoomInfoView(code, link string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room Code:  %s\n%s Room Link:  %s\n\n%s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(code),
		IconWeb, MutedStyle.Render(link),
		MutedStyle.Render("roomdrop receive "+code),
	)
	return RoomBoxStyle.Render(content)
}

func RenderRoomInfo(code, link string) {
	fmt.Fprintln(Out, RoomInfoView(code, link))
}

// OfferView describes an inbound offer.
func OfferView(name string, size int64) string {
	content := fmt.Sprintf("%s Incoming file\n\n%s %s\n%s %s",
		IconReceive,
		MutedStyle.Render("Name:"), HighlightStyle.Render(name),
		MutedStyle.Render("Size:"), HighlightStyle.Render(utils.FormatSize(size)),
	)
	return OfferBoxStyle.Render(content)
}
