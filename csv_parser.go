// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package zaber

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Script step commands.
const (
	StepHome    = "home"
	StepMoveAbs = "move_abs"
	StepMoveRel = "move_rel"
	StepMoveVel = "move_vel"
	StepStop    = "stop"
	StepGet     = "get"
	StepSet     = "set"
	StepRaw     = "raw"
)

// ScriptStep is one row of a motion script.
type ScriptStep struct {
	Step    int           // row order as written, defaults to the row number
	Device  int           // device address
	Axis    int           // 0 for the whole device
	Command string        // one of the Step* constants
	Value   string        // position, distance, velocity, setting or raw body
	Wait    time.Duration // pause after the step completes
}

// CSVScriptParser handles conversion between CSV and ScriptStep
type CSVScriptParser struct {
	headers []string
}

// NewCSVScriptParser creates a new CSV script parser
func NewCSVScriptParser() *CSVScriptParser {
	return &CSVScriptParser{
		headers: []string{"step", "device", "axis", "command", "value", "wait"},
	}
}

// ParseCSV parses CSV data and returns the steps in file order.
func (p *CSVScriptParser) ParseCSV(reader io.Reader) ([]ScriptStep, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.Comment = '#'
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	headerMap := make(map[string]int)
	for i, h := range records[0] {
		headerMap[strings.TrimSpace(h)] = i
	}
	for _, field := range []string{"device", "command"} {
		if _, exists := headerMap[field]; !exists {
			return nil, fmt.Errorf("missing required field in CSV header: %s", field)
		}
	}

	var steps []ScriptStep
	for i, record := range records[1:] {
		rowNum := i + 2
		step, err := p.parseStepFromRecord(record, headerMap, rowNum)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", rowNum, err)
		}
		if err := p.ValidateStep(step); err != nil {
			return nil, fmt.Errorf("validation error for row %d (step %d): %w", rowNum, step.Step, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// ParseCSVFromString is ParseCSV over a string.
func (p *CSVScriptParser) ParseCSVFromString(data string) ([]ScriptStep, error) {
	return p.ParseCSV(strings.NewReader(data))
}

// ParseScript parses a CSV motion script with the default parser.
func ParseScript(r io.Reader) ([]ScriptStep, error) {
	return NewCSVScriptParser().ParseCSV(r)
}

func (p *CSVScriptParser) parseStepFromRecord(record []string, headerMap map[string]int, rowNum int) (ScriptStep, error) {
	var step ScriptStep

	getField := func(fieldName string) string {
		if idx, exists := headerMap[fieldName]; exists && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	parseIntField := func(fieldName string, def int) (int, error) {
		strVal := getField(fieldName)
		if strVal == "" {
			return def, nil
		}
		val, err := strconv.Atoi(strVal)
		if err != nil {
			return 0, fmt.Errorf("invalid '%s': %w", fieldName, err)
		}
		return val, nil
	}

	var err error
	if step.Step, err = parseIntField("step", rowNum-1); err != nil {
		return step, err
	}
	if getField("device") == "" {
		return step, fmt.Errorf("'device' is required at row %d", rowNum)
	}
	if step.Device, err = parseIntField("device", 0); err != nil {
		return step, err
	}
	if step.Axis, err = parseIntField("axis", 0); err != nil {
		return step, err
	}

	step.Command = strings.ToLower(getField("command"))
	if step.Command == "" {
		return step, fmt.Errorf("'command' is required at row %d", rowNum)
	}
	step.Value = getField("value")

	if waitStr := getField("wait"); waitStr != "" {
		step.Wait, err = time.ParseDuration(waitStr)
		if err != nil {
			return step, fmt.Errorf("invalid 'wait' at row %d: %w", rowNum, err)
		}
	}
	return step, nil
}

// ValidateStep checks addressing and the value each command needs.
func (p *CSVScriptParser) ValidateStep(step ScriptStep) error {
	if step.Device < 1 || step.Device > MaxDeviceAddress {
		return fmt.Errorf("device %d out of range 1-%d", step.Device, MaxDeviceAddress)
	}
	if step.Axis < 0 {
		return fmt.Errorf("axis %d is negative", step.Axis)
	}
	if step.Wait < 0 {
		return fmt.Errorf("wait %v is negative", step.Wait)
	}

	switch step.Command {
	case StepHome, StepStop:
		if step.Value != "" {
			return fmt.Errorf("%s takes no value", step.Command)
		}
	case StepMoveAbs, StepMoveRel, StepMoveVel:
		if step.Axis == 0 {
			return fmt.Errorf("%s needs an axis", step.Command)
		}
		if _, err := strconv.Atoi(step.Value); err != nil {
			return fmt.Errorf("%s needs an integer value, got %q", step.Command, step.Value)
		}
	case StepGet:
		if step.Value == "" || strings.ContainsAny(step.Value, " \t") {
			return fmt.Errorf("get needs one setting name, got %q", step.Value)
		}
	case StepSet:
		if len(strings.Fields(step.Value)) != 2 {
			return fmt.Errorf("set needs \"<setting> <value>\", got %q", step.Value)
		}
	case StepRaw:
		if step.Value == "" {
			return fmt.Errorf("raw needs a command body")
		}
	default:
		return fmt.Errorf("unknown command %q", step.Command)
	}
	return nil
}

// ToCSV writes steps with the full header.
func (p *CSVScriptParser) ToCSV(steps []ScriptStep, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)

	if err := csvWriter.Write(p.headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, step := range steps {
		if err := csvWriter.Write(p.stepToRecord(step)); err != nil {
			return fmt.Errorf("failed to write CSV record for step %d: %w", step.Step, err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (p *CSVScriptParser) stepToRecord(step ScriptStep) []string {
	wait := ""
	if step.Wait > 0 {
		wait = step.Wait.String()
	}
	return []string{
		strconv.Itoa(step.Step),
		strconv.Itoa(step.Device),
		strconv.Itoa(step.Axis),
		step.Command,
		step.Value,
		wait,
	}
}

// ToCSVString converts steps to a CSV string
func (p *CSVScriptParser) ToCSVString(steps []ScriptStep) (string, error) {
	var builder strings.Builder
	if err := p.ToCSV(steps, &builder); err != nil {
		return "", err
	}
	return builder.String(), nil
}
