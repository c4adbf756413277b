// Project: MLE and Metropolis-Hastings Estimation of a Multinomial Logit Choice Model
// Data: simulated conjoint choice panels over brand, ad exposure, and price attributes.

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// panelColumns is the fixed CSV schema for choice panels, in order.
var panelColumns = []string{"respondent", "task", "choice", "brand", "ad", "price"}

// taskKey identifies one task inside one respondent's block of rows.
type taskKey struct {
	Respondent int
	Task       int
}

// LoadCSVToChoicePanel loads a delimited choice panel with the fixed column
// schema respondent, task, choice, brand, ad, price. Rows belonging to the
// same (respondent, task) pair form one task; exactly one row per task must
// carry choice=1. Malformed input fails with the offending row number.
func LoadCSVToChoicePanel(path string) (*ChoicePanel, error) {
	// 1. Open file
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// 2. Make CSV reader
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	// 3. Read and check the header row
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(panelColumns) {
		return nil, fmt.Errorf("header has %d columns, want %d (%s)",
			len(header), len(panelColumns), strings.Join(panelColumns, ","))
	}
	for i, want := range panelColumns {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, fmt.Errorf("header column %d is %q, want %q", i+1, header[i], want)
		}
	}

	type taskRows struct {
		Profiles    []Profile
		Chosen      int
		ChosenCount int
	}

	var (
		order      []taskKey
		tasks      = make(map[taskKey]*taskRows)
		brandOrder []string
		brandSeen  = make(map[string]bool)
		priceSeen  = make(map[float64]bool)
		row        int
	)

	// 4. Read each data row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+2, err)
		}
		line := row + 2 // header + 1-based

		// Skip completely empty lines
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != len(panelColumns) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", line, len(panelColumns), len(record))
		}

		resp, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse respondent %q: %w", line, record[0], err)
		}
		taskID, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse task %q: %w", line, record[1], err)
		}
		choice, err := strconv.Atoi(record[2])
		if err != nil || (choice != 0 && choice != 1) {
			return nil, fmt.Errorf("row %d: choice flag must be 0 or 1, got %q", line, record[2])
		}
		brand := strings.TrimSpace(record[3])
		if brand == "" {
			return nil, fmt.Errorf("row %d: empty brand", line)
		}
		ad, err := strconv.ParseBool(record[4])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse ad flag %q: %w", line, record[4], err)
		}
		price, err := strconv.ParseFloat(record[5], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse price %q: %w", line, record[5], err)
		}

		if !brandSeen[brand] {
			brandSeen[brand] = true
			brandOrder = append(brandOrder, brand)
		}
		priceSeen[price] = true

		key := taskKey{Respondent: resp, Task: taskID}
		tr, ok := tasks[key]
		if !ok {
			tr = &taskRows{}
			tasks[key] = tr
			order = append(order, key)
		}
		if choice == 1 {
			tr.Chosen = len(tr.Profiles)
			tr.ChosenCount++
		}
		tr.Profiles = append(tr.Profiles, Profile{Brand: brand, Ad: ad, Price: price})
		row++
	}

	if row == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	// 5. Enforce the exactly-one-choice invariant per task
	out := make([]ChoiceTask, 0, len(order))
	for _, key := range order {
		tr := tasks[key]
		if tr.ChosenCount != 1 {
			return nil, fmt.Errorf("respondent %d task %d has %d chosen alternatives, want exactly 1",
				key.Respondent, key.Task, tr.ChosenCount)
		}
		out = append(out, ChoiceTask{
			Respondent: key.Respondent,
			Task:       key.Task,
			Profiles:   tr.Profiles,
			Chosen:     tr.Chosen,
		})
	}

	// 6. Assemble the attribute set: brands in order of first appearance
	// (the first brand is the reference level), prices sorted ascending
	prices := make([]float64, 0, len(priceSeen))
	for p := range priceSeen {
		prices = append(prices, p)
	}
	sort.Float64s(prices)

	panel := &ChoicePanel{
		Attrs: AttributeSet{Brands: brandOrder, Prices: prices},
		Tasks: out,
	}
	if err := panel.Validate(); err != nil {
		return nil, err
	}
	return panel, nil
}

// OutputPanelToCSV writes a choice panel in the same long format the loader
// reads: one row per alternative with a 0/1 choice flag.
func OutputPanelToCSV(path string, panel *ChoicePanel) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(panelColumns); err != nil {
		return err
	}

	for i := range panel.Tasks {
		task := &panel.Tasks[i]
		for j, prof := range task.Profiles {
			choice := "0"
			if j == task.Chosen {
				choice = "1"
			}
			ad := "0"
			if prof.Ad {
				ad = "1"
			}
			record := []string{
				strconv.Itoa(task.Respondent),
				strconv.Itoa(task.Task),
				choice,
				prof.Brand,
				ad,
				fmt.Sprintf("%g", prof.Price),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	return nil
}

// OutputChainToCSV writes the full chain in long format.
// Columns: Iteration, one column per coefficient, LogPosterior.
func OutputChainToCSV(path string, chain *PosteriorChain, names []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	rows, K := chain.Draws.Dims()

	header := []string{"Iteration"}
	for k := 0; k < K; k++ {
		if len(names) == K {
			header = append(header, names[k])
		} else {
			header = append(header, fmt.Sprintf("Param%d", k+1))
		}
	}
	header = append(header, "LogPosterior")
	if err := writer.Write(header); err != nil {
		return err
	}

	for it := 0; it < rows; it++ {
		record := []string{strconv.Itoa(it + 1)}
		for k := 0; k < K; k++ {
			record = append(record, fmt.Sprintf("%f", chain.Draws.At(it, k)))
		}
		record = append(record, fmt.Sprintf("%f", chain.LogPosterior[it]))
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

// OutputPosteriorSummaryToCSV writes a posterior summary table.
// Columns: Parameter, Mean, StdDev, Lower, Upper
func OutputPosteriorSummaryToCSV(path string, summary []CoordinateSummary) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Parameter", "Mean", "StdDev", "Lower", "Upper"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, s := range summary {
		record := []string{
			s.Name,
			fmt.Sprintf("%f", s.Mean),
			fmt.Sprintf("%f", s.StdDev),
			fmt.Sprintf("%f", s.Lower),
			fmt.Sprintf("%f", s.Upper),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

// OutputMLESummaryToCSV writes the point estimates and standard errors.
// Columns: Parameter, Estimate, StdError
func OutputMLESummaryToCSV(path string, res *MLEResult, names []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Parameter", "Estimate", "StdError"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for k, est := range res.Estimate {
		name := fmt.Sprintf("Param%d", k+1)
		if len(names) == len(res.Estimate) {
			name = names[k]
		}
		se := ""
		if res.StdErrors != nil {
			se = fmt.Sprintf("%f", res.StdErrors[k])
		}
		if err := writer.Write([]string{name, fmt.Sprintf("%f", est), se}); err != nil {
			return err
		}
	}

	return nil
}

// Summary prints descriptive statistics for the panel: dimensions, attribute
// domains, and the observed choice share per brand.
func (p *ChoicePanel) Summary() {
	if p == nil || len(p.Tasks) == 0 {
		fmt.Println("Choice panel is empty")
		return
	}

	respondents := make(map[int]bool)
	brandChosen := make(map[string]int)
	adChosen := 0
	for i := range p.Tasks {
		task := &p.Tasks[i]
		respondents[task.Respondent] = true
		chosen := task.Profiles[task.Chosen]
		brandChosen[chosen.Brand]++
		if chosen.Ad {
			adChosen++
		}
	}

	fmt.Println("        Choice Panel Summary        ")
	fmt.Printf("Respondents:        %d\n", len(respondents))
	fmt.Printf("Tasks:              %d\n", len(p.Tasks))
	fmt.Printf("Parameters (K):     %d\n", p.Attrs.NumParams())
	fmt.Printf("Brand levels:       %s (reference: %s)\n",
		strings.Join(p.Attrs.Brands, ", "), p.Attrs.Brands[0])
	fmt.Printf("Price levels:       %v\n", p.Attrs.Prices)
	fmt.Println()

	total := float64(len(p.Tasks))
	fmt.Println("Chosen-alternative shares:")
	for _, b := range p.Attrs.Brands {
		fmt.Printf("  %-12s %6.3f\n", b, float64(brandChosen[b])/total)
	}
	fmt.Printf("  %-12s %6.3f\n", "with ad", float64(adChosen)/total)
	fmt.Println("====================================")
}

// PrintMLESummary prints the point estimates with standard errors, or a
// non-convergence warning when the optimizer ran out of budget.
func PrintMLESummary(res *MLEResult, names []string) {
	fmt.Println("\n=== Maximum-Likelihood Estimates ===")
	fmt.Printf("Negative log-likelihood: %.4f\n", res.NegLogLik)
	if !res.Converged {
		fmt.Println("WARNING: optimizer did not converge; reporting best point found, no standard errors")
	}
	fmt.Println()

	fmt.Printf("%-16s | %10s | %10s\n", "Parameter", "Estimate", "Std.Err")
	fmt.Println("---------------------------------------------")
	for k, est := range res.Estimate {
		name := fmt.Sprintf("Param%d", k+1)
		if len(names) == len(res.Estimate) {
			name = names[k]
		}
		if res.StdErrors != nil {
			fmt.Printf("%-16s | %10.4f | %10.4f\n", name, est, res.StdErrors[k])
		} else {
			fmt.Printf("%-16s | %10.4f | %10s\n", name, est, "-")
		}
	}
	fmt.Println()
}

// PrintPosteriorSummary prints the posterior summary table for one chain or
// a pooled chain set.
func PrintPosteriorSummary(summary []CoordinateSummary, alpha float64) {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.05
	}
	level := 100 * (1 - alpha)

	fmt.Println("\n=== Posterior Summary ===")
	fmt.Printf("%-16s | %10s | %10s | %21s\n", "Parameter", "Mean", "StdDev",
		fmt.Sprintf("%.0f%% credible interval", level))
	fmt.Println("----------------------------------------------------------------")
	for _, s := range summary {
		fmt.Printf("%-16s | %10.4f | %10.4f | [%9.4f, %9.4f]\n",
			s.Name, s.Mean, s.StdDev, s.Lower, s.Upper)
	}
	fmt.Println()
}

// PrintChainDiagnostics prints per-chain acceptance rates plus the pooled
// split R-hat and effective-sample-size diagnostics.
func PrintChainDiagnostics(cs *ChainSet, names []string) error {
	rhat, err := cs.RHat()
	if err != nil {
		return err
	}
	ess, err := cs.EffectiveSampleSize()
	if err != nil {
		return err
	}

	fmt.Println("\n=== Chain Diagnostics ===")
	for i, rate := range cs.AcceptanceRates() {
		fmt.Printf("Chain %d acceptance rate: %.3f\n", i+1, rate)
	}
	fmt.Println()

	fmt.Printf("%-16s | %8s | %10s\n", "Parameter", "R-hat", "ESS")
	fmt.Println("----------------------------------------")
	for k := range rhat {
		name := fmt.Sprintf("Param%d", k+1)
		if len(names) == len(rhat) {
			name = names[k]
		}
		fmt.Printf("%-16s | %8.4f | %10.1f\n", name, rhat[k], ess[k])
	}
	fmt.Println()
	return nil
}
