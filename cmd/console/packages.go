package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"reuse-console/internal/model"
	"reuse-console/internal/packages"
	"reuse-console/internal/prefs"
)

// packagesTable is the namespace the package list view is saved under.
const packagesTable = "packages"

// itemList collects repeated -item product:quantity flags.
type itemList []model.PackageItem

func (l *itemList) String() string {
	parts := make([]string, len(*l))
	for i, it := range *l {
		parts[i] = it.ProductID + ":" + strconv.Itoa(it.Quantity)
	}
	return strings.Join(parts, ",")
}

func (l *itemList) Set(v string) error {
	product, qty, ok := strings.Cut(v, ":")
	if !ok {
		qty = "1"
	}
	n, err := strconv.Atoi(qty)
	if err != nil || product == "" {
		return fmt.Errorf("item %q is not product:quantity", v)
	}
	*l = append(*l, model.PackageItem{ProductID: product, Quantity: n})
	return nil
}

func (a *app) packagesCmd(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list":
		return a.listPackages(ctx, args)

	case "show":
		if len(args) != 1 {
			return errors.New("usage: packages show <id>")
		}
		p, err := a.packages.Get(ctx, args[0])
		if err != nil {
			return err
		}
		printPackage(p)
		return nil

	case "create":
		fs := flag.NewFlagSet("packages create", flag.ContinueOnError)
		var d packages.Draft
		fs.Var((*itemList)(&d.Items), "item", "Item as product:quantity, repeatable")
		fs.Int64Var(&d.TotalPrice, "price", 0, "Total price")
		fs.StringVar(&d.UserID, "user", "", "Owner user id (administrators only)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		p, err := a.packages.Create(ctx, d)
		if err != nil {
			return err
		}
		printPackage(p)
		return nil

	case "status":
		if len(args) != 2 {
			return errors.New("usage: packages status <id> <Active|InUse|Returned|Washing|Damaged>")
		}
		p, err := a.packages.SetStatus(ctx, args[0], model.PackageStatus(args[1]))
		if err != nil {
			return err
		}
		printPackage(p)
		return nil

	case "delete":
		if len(args) != 1 {
			return errors.New("usage: packages delete <id>")
		}
		if err := a.packages.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("Deleted", args[0])
		return nil

	case "qr":
		results, err := a.packages.GenerateQR(ctx, args)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Status == "success" {
				fmt.Printf("%s  %s\n", r.ItemUID, r.QRCodeURL)
			} else {
				fmt.Printf("%s  error: %s\n", r.ItemUID, r.Error)
			}
		}
		return nil
	}
	return fmt.Errorf("unknown packages command %q", sub)
}

func printPackage(p model.Package) {
	fmt.Println(formatRow(p, nil))
}

// listPackages prints the package table. Flags change the saved view, which
// later runs reuse.
func (a *app) listPackages(ctx context.Context, args []string) error {
	st := a.tables.Get(packagesTable)
	fs := flag.NewFlagSet("packages list", flag.ContinueOnError)
	sortBy := fs.String("sort", "", "Sort column: id, status, owner, price, created")
	desc := fs.Bool("desc", false, "Sort descending")
	status := fs.String("status", "", `Only packages in this status, "all" clears the filter`)
	page := fs.Int("page", st.Pagination.PageIndex+1, "Page number")
	size := fs.Int("size", st.Pagination.PageSize, "Rows per page")
	hide := fs.String("hide", "", "Columns to hide: owner, price, items")
	show := fs.String("show", "", "Columns to show again")
	if err := fs.Parse(args); err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["sort"] || set["desc"] {
		col := *sortBy
		if col == "" && len(st.Sorting) > 0 {
			col = st.Sorting[0].ID
		}
		if col == "" {
			col = "id"
		}
		if err := a.tables.SetSorting(ctx, packagesTable, []prefs.SortColumn{{ID: col, Desc: *desc}}); err != nil {
			return err
		}
	}
	if set["status"] {
		filters := []prefs.ColumnFilter{}
		if *status != "all" {
			filters = append(filters, prefs.ColumnFilter{ID: "status", Value: *status})
		}
		if err := a.tables.SetColumnFilters(ctx, packagesTable, filters); err != nil {
			return err
		}
	}
	if set["page"] || set["size"] {
		if *page < 1 || *size < 1 {
			return errors.New("page and size must be positive")
		}
		if err := a.tables.SetPagination(ctx, packagesTable, prefs.Pagination{PageIndex: *page - 1, PageSize: *size}); err != nil {
			return err
		}
	}
	if set["hide"] || set["show"] {
		vis := maps.Clone(st.ColumnVisibility)
		if vis == nil {
			vis = map[string]bool{}
		}
		for _, c := range splitColumns(*hide) {
			vis[c] = false
		}
		for _, c := range splitColumns(*show) {
			vis[c] = true
		}
		if err := a.tables.SetColumnVisibility(ctx, packagesTable, vis); err != nil {
			return err
		}
	}

	list, err := a.packages.List(ctx)
	if err != nil {
		return err
	}
	st = a.tables.Get(packagesTable)
	rows, total := viewPackages(list, st)
	if total == 0 {
		fmt.Println("No packages.")
		return nil
	}
	for _, p := range rows {
		fmt.Println(formatRow(p, st.ColumnVisibility))
	}
	perPage := st.Pagination.PageSize
	if perPage <= 0 {
		perPage = prefs.DefaultPageSize
	}
	pages := (total + perPage - 1) / perPage
	fmt.Printf("page %d of %d, %d packages\n", st.Pagination.PageIndex+1, pages, total)
	return nil
}

func splitColumns(v string) []string {
	var out []string
	for _, c := range strings.Split(v, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// viewPackages applies the saved filters, sorting and pagination. It returns
// the rows of the current page and the number of rows before paging.
func viewPackages(list []model.Package, st prefs.TableState) ([]model.Package, int) {
	rows := make([]model.Package, 0, len(list))
	for _, p := range list {
		if matches(p, st.ColumnFilters) {
			rows = append(rows, p)
		}
	}
	if len(st.Sorting) > 0 {
		col := st.Sorting[0]
		slices.SortStableFunc(rows, func(x, y model.Package) int {
			c := compareColumn(col.ID, x, y)
			if col.Desc {
				return -c
			}
			return c
		})
	}

	total := len(rows)
	size := st.Pagination.PageSize
	if size <= 0 {
		size = prefs.DefaultPageSize
	}
	start := st.Pagination.PageIndex * size
	if start >= total {
		return nil, total
	}
	return rows[start:min(start+size, total)], total
}

func matches(p model.Package, filters []prefs.ColumnFilter) bool {
	for _, f := range filters {
		want := fmt.Sprint(f.Value)
		switch f.ID {
		case "status":
			if !strings.EqualFold(string(p.Status), want) {
				return false
			}
		case "owner":
			if p.UserID != want {
				return false
			}
		}
	}
	return true
}

func compareColumn(col string, x, y model.Package) int {
	switch col {
	case "status":
		return strings.Compare(string(x.Status), string(y.Status))
	case "owner":
		return strings.Compare(x.UserID, y.UserID)
	case "price":
		return cmp.Compare(x.TotalPrice, y.TotalPrice)
	case "created":
		return x.CreatedAt.Compare(y.CreatedAt)
	default:
		return strings.Compare(x.ID, y.ID)
	}
}

func formatRow(p model.Package, visible map[string]bool) string {
	shown := func(col string) bool {
		v, ok := visible[col]
		return !ok || v
	}
	cols := []string{fmt.Sprintf("%-10s", p.ID), fmt.Sprintf("%-9s", p.Status)}
	if shown("owner") {
		cols = append(cols, "owner="+p.UserID)
	}
	if shown("price") {
		cols = append(cols, "price="+strconv.FormatInt(p.TotalPrice, 10))
	}
	if shown("items") {
		items := itemList(p.Items)
		cols = append(cols, "items="+items.String())
	}
	return strings.Join(cols, " ")
}
