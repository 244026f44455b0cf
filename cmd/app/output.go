package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/scorpionhol/pointage/internal/domain"
)

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func printKV(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
}

func printTable(headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func formatMaybeUint(v *uint) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatMaybeString(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func printAgents(items []domain.Agent) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Name,
			item.Note,
			formatMaybeString(item.BadgeCode),
		})
	}
	printTable([]string{"ID", "NOM", "POSTE", "MATRICULE"}, rows)
}

func printHistory(items []domain.DailyRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		late := ""
		if item.ArriveeRetard {
			late = "retard"
		}
		rows = append(rows, []string{
			formatMaybeString(item.Name),
			item.Date,
			formatMaybeString(item.Arrivee),
			late,
			formatMaybeString(item.Depart),
			formatMaybeString(item.HeuresSup),
		})
	}
	printTable([]string{"NOM", "DATE", "ARRIVEE", "RETARD", "DEPART", "HEURES_SUP"}, rows)
}

func printAuditRecords(items []domain.AuditRecord) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			item.Action,
			item.TargetType,
			formatMaybeUint(item.TargetID),
			item.ActorUsername,
			formatTime(item.CreatedAt),
		})
	}
	printTable([]string{"ID", "ACTION", "TARGET_TYPE", "TARGET_ID", "ACTOR", "AT"}, rows)
}
