package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/txn-review/approvals/src/client/export"
	"github.com/txn-review/approvals/src/client/session"
	"github.com/txn-review/approvals/src/data"
)

const shellHelp = `commands:
  employees             list employees
  select <id|all>       filter by employee, or show everyone
  list                  show the current view
  more                  load the next page (all employees only)
  approve <id>          mark a transaction approved
  reject <id>           mark a transaction not approved
  export <file.xlsx>    write the current view to a workbook
  reset                 drop everything loaded and start over
  stats                 request cache counters
  help                  this text
  quit                  leave`

// shell is the line-oriented front end of a review session.
type shell struct {
	sess   *session.Session
	out    io.Writer
	gather prometheus.Gatherer
}

func newShell(sess *session.Session, out io.Writer, gather prometheus.Gatherer) *shell {
	return &shell{sess: sess, out: out, gather: gather}
}

func (sh *shell) run(ctx context.Context, in io.Reader) error {
	if err := sh.sess.Mount(ctx); err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
	}
	sh.render()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(sh.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(sh.out)
			return scanner.Err()
		}
		quit, err := sh.exec(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		if quit || ctx.Err() != nil {
			return nil
		}
	}
}

func (sh *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
	case "employees":
		sh.renderEmployees()
	case "select":
		if len(args) != 1 {
			return false, errors.New("usage: select <employee-id|all>")
		}
		id := args[0]
		if id == "all" {
			id = ""
		}
		err = sh.sess.SelectEmployee(ctx, id)
		sh.render()
	case "list":
		sh.render()
	case "more":
		err = sh.sess.ViewMore(ctx)
		if errors.Is(err, session.ErrViewMoreUnavailable) {
			return false, errors.New("no more transactions to load for this view")
		}
		sh.render()
	case "approve", "reject":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s <transaction-id>", cmd)
		}
		if err := sh.sess.SetApproval(args[0], cmd == "approve"); err != nil {
			return false, err
		}
		sh.render()
	case "export":
		if len(args) != 1 {
			return false, errors.New("usage: export <file.xlsx>")
		}
		st := sh.sess.State()
		if err := export.WriteXLSX(args[0], st.Transactions); err != nil {
			return false, err
		}
		fmt.Fprintf(sh.out, "wrote %d transactions to %s\n", len(st.Transactions), args[0])
	case "reset":
		sh.sess.Invalidate()
		err = sh.sess.Mount(ctx)
		sh.render()
	case "stats":
		err = sh.renderStats()
	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, err
}

func (sh *shell) renderEmployees() {
	st := sh.sess.State()
	if st.EmployeesLoading {
		fmt.Fprintln(sh.out, "employees: loading...")
		return
	}
	tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	for _, e := range sh.sess.Employees() {
		marker := " "
		if st.Selection.IsAll() && e.ID == data.AllEmployeesID {
			marker = "*"
		} else if id, ok := st.Selection.EmployeeID(); ok && id == e.ID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", marker, e.ID, e.DisplayName())
	}
	tw.Flush()
}

func (sh *shell) render() {
	st := sh.sess.State()
	status := ""
	if st.Loading || st.LoadingMore {
		status = " (loading...)"
	}
	fmt.Fprintf(sh.out, "view: %s%s\n", st.Selection, status)

	tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, tx := range st.Transactions {
		check := "[ ]"
		if tx.Approved {
			check = "[x]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			check, tx.ID, tx.Employee.DisplayName(), tx.Merchant, tx.Date, tx.Amount.StringFixed(2))
	}
	tw.Flush()

	if len(st.Transactions) == 0 && !st.Loading {
		fmt.Fprintln(sh.out, "(no transactions)")
	}
	if st.CanViewMore {
		fmt.Fprintln(sh.out, "more available: type 'more'")
	}
	if st.Err != nil {
		fmt.Fprintf(sh.out, "last error: %v\n", st.Err)
	}
}

func (sh *shell) renderStats() error {
	mfs, err := sh.gather.Gather()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "resource\tresult\tcount")
	for _, mf := range mfs {
		if mf.GetName() != "approvals_cache_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			fmt.Fprintf(tw, "%s\t%s\t%.0f\n", labels["resource"], labels["result"], m.GetCounter().GetValue())
		}
	}
	return tw.Flush()
}
