package seed

import (
	"log"

	"github.com/jmoiron/sqlx"

	"bims/m/domain"
)

type sampleProduct struct {
	sku           string
	name          string
	description   string
	brand         string
	category      string
	supplier      string
	purchasePrice float64
	sellingPrice  float64
	taxRate       float64
	stock         int64
	reorderLevel  int64
}

var sampleProducts = []sampleProduct{
	{"TECH-001", "Smartphone X1", "Latest smartphone with high-end features", "TechBrand", "Electronics", "TechSupply Inc.", 300, 499.99, 10, 25, 5},
	{"TECH-002", "Wireless Earbuds", "Noise-cancelling wireless earbuds", "TechBrand", "Electronics", "TechSupply Inc.", 45, 89.99, 10, 40, 10},
	{"CLTH-001", "Cotton T-Shirt", "Plain cotton t-shirt, assorted colors", "BasicWear", "Clothing", "Fashion Wholesale", 4.5, 12.99, 5, 120, 20},
	{"OFFC-001", "Ballpoint Pens (12-pack)", "Smooth-writing ballpoint pens", "WriteWell", "Office Supplies", "Office Depot", 2.4, 5.99, 0, 80, 15},
	{"OFFC-002", "A4 Paper Ream", "500 sheets, 80gsm", "PaperCo", "Office Supplies", "Office Depot", 3.1, 6.49, 0, 60, 10},
}

// Load populates an empty database with a system user and a small
// sample catalog. Safe to call on every startup.
func Load(db *sqlx.DB) {
	var productCount int64
	if err := db.Get(&productCount, `SELECT COUNT(*) FROM products`); err != nil {
		log.Printf("unable to check product count: %v", err)
		return
	}
	if productCount > 0 {
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start seed transaction: %v", err)
		return
	}
	defer tx.Rollback()

	var adminID int64
	if err := tx.QueryRowx(
		`INSERT INTO users (username, email, role) VALUES (?, ?, ?) RETURNING user_id`,
		"admin", "admin@example.com", "admin").Scan(&adminID); err != nil {
		log.Printf("unable to seed admin user: %v", err)
		return
	}

	categories := map[string]int64{}
	for _, c := range []struct{ name, description string }{
		{"Electronics", "Electronic devices and accessories"},
		{"Clothing", "Apparel and fashion items"},
		{"Office Supplies", "Stationery and office equipment"},
	} {
		var id int64
		if err := tx.QueryRowx(
			`INSERT INTO categories (name, description) VALUES (?, ?) RETURNING category_id`,
			c.name, c.description).Scan(&id); err != nil {
			log.Printf("unable to seed category %s: %v", c.name, err)
			return
		}
		categories[c.name] = id
	}

	suppliers := map[string]int64{}
	for _, s := range []struct{ company, contact, email string }{
		{"TechSupply Inc.", "John Smith", "john@techsupply.com"},
		{"Fashion Wholesale", "Mary Johnson", "mary@fashionws.com"},
		{"Office Depot", "Robert Brown", "robert@officedepot.com"},
	} {
		var id int64
		if err := tx.QueryRowx(
			`INSERT INTO suppliers (company_name, contact_person, email, status) VALUES (?, ?, ?, 'active') RETURNING supplier_id`,
			s.company, s.contact, s.email).Scan(&id); err != nil {
			log.Printf("unable to seed supplier %s: %v", s.company, err)
			return
		}
		suppliers[s.company] = id
	}

	rows := 0
	for _, p := range sampleProducts {
		var productID int64
		err := tx.QueryRowx(
			`INSERT INTO products (sku, name, description, brand, category_id, supplier_id,
                 purchase_price, selling_price, tax_rate, stock_quantity, reorder_level)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING product_id`,
			p.sku, p.name, p.description, p.brand, categories[p.category], suppliers[p.supplier],
			p.purchasePrice, p.sellingPrice, p.taxRate, p.stock, p.reorderLevel).Scan(&productID)
		if err != nil {
			log.Printf("unable to seed product %s: %v", p.sku, err)
			return
		}
		// Initial stock goes through the ledger like any other change.
		if _, err := tx.Exec(
			`INSERT INTO inventory_log (product_id, user_id, quantity_change, type, notes)
             VALUES (?, ?, ?, ?, ?)`,
			productID, adminID, p.stock, domain.LogAdjustment, "Initial stock from seed data"); err != nil {
			log.Printf("unable to seed inventory log for %s: %v", p.sku, err)
			return
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit seed data: %v", err)
		return
	}
	log.Printf("seeded catalog with %d products", rows)
}
