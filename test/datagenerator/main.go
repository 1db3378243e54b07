// Command datagenerator seeds a development database with synthetic
// pharmacies, patients, claims and triggers so scans have something to find.
// It is a development tool only; never point it at production data.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"time"

	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"github.com/switchrx/oppscan-app/oppscan/database"
)

var drugPool = []struct {
	name string
	ndc  string
}{
	{"SAFETY LANCET 30G", "12345678901"},
	{"ACME LANCET 100CT", "00001111222"},
	{"UNIFINE PENTIPS 31G 8MM", "09999000111"},
	{"BD PEN NEEDLE NANO 32G", "08290320053"},
	{"FREESTYLE LIBRE 2 SENSOR", "57599080200"},
	{"ONETOUCH ULTRA TEST STRIP", "53885024450"},
	{"METFORMIN HCL 500MG TAB", "00093104805"},
	{"LISINOPRIL 10MG TAB", "68180051301"},
	{"ATORVASTATIN 20MG TAB", "00378395105"},
}

var binPool = []string{"004336", "610011", "610591", "015581", "003858"}

var profitKeys = []string{"net_profit", "NetProfit", "rx_profit", "gross profit"}

func main() {
	patientCount := flag.Int("patients", 200, "number of patients to create")
	claimsPerPatient := flag.Int("claims", 8, "claims per patient")
	pharmacies := flag.Int("pharmacies", 3, "number of pharmacies to spread data over")
	flag.Parse()

	rand.Seed(time.Now().UTC().UnixNano())

	db := database.GetDbConnection()
	defer db.Close()

	seedTriggers(db)

	now := time.Now()
	for i := 0; i < *patientCount; i++ {
		pharmacyID := 1 + rand.Intn(*pharmacies)
		patientID := seedPatient(db, pharmacyID)
		for j := 0; j < *claimsPerPatient; j++ {
			seedClaim(db, pharmacyID, patientID, now)
		}
	}

	log.Infof("Seeded %d patients with up to %d claims each", *patientCount, *claimsPerPatient)
}

func seedTriggers(db *sql.DB) {
	triggers := []struct {
		name, recommended, ndc string
		keywords               []string
		exclusions             []string
		expectedQty            float64
		defaultProfit          float64
	}{
		{"Lancet Conversion", "PURE COMFORT LANCET 30G", "08317030030",
			[]string{"LANCET"}, []string{"PURE COMFORT"}, 100, 12.50},
		{"Pen Needle Conversion", "PURE COMFORT PEN NEEDLE 32G", "08317320050",
			[]string{"PEN NEEDLE", "PENTIPS"}, []string{"PURE COMFORT"}, 100, 15.00},
		{"CGM Upgrade", "FREESTYLE LIBRE 3 SENSOR", "57599081800",
			[]string{"TEST STRIP", "LIBRE 2"}, []string{"LIBRE 3"}, 2, 45.00},
	}

	for _, t := range triggers {
		if _, err := db.Exec(`INSERT INTO triggers
			(name, keywords, exclusion_phrases, match_mode, recommended_drug_name,
				recommended_drug_ndc, expected_quantity, default_profit, annual_fills, enabled)
			VALUES ($1, $2, $3, 'any', $4, $5, $6, $7, 12, TRUE)
			ON CONFLICT DO NOTHING`,
			t.name, pq.Array(t.keywords), pq.Array(t.exclusions), t.recommended, t.ndc,
			t.expectedQty, t.defaultProfit); err != nil {
			log.Fatal(err)
		}
	}
}

func seedPatient(db *sql.DB, pharmacyID int) int {
	bin := binPool[rand.Intn(len(binPool))]
	group := fmt.Sprintf("RX%d", rand.Intn(30))

	var id int
	if err := db.QueryRow(`INSERT INTO patients (pharmacy_id, primary_bin, primary_group)
		VALUES ($1, $2, $3) RETURNING id`, pharmacyID, bin, group).Scan(&id); err != nil {
		log.Fatal(err)
	}
	return id
}

func seedClaim(db *sql.DB, pharmacyID, patientID int, now time.Time) {
	drug := drugPool[rand.Intn(len(drugPool))]
	quantity := float64(30 * (1 + rand.Intn(4)))
	daysSupply := 30

	// Leave insurance off some claims so the patient fallback path gets
	// exercised, and vary the profit key the way real switch feeds do.
	var bin, group interface{}
	if rand.Intn(10) > 1 {
		bin = binPool[rand.Intn(len(binPool))]
		group = fmt.Sprintf("RX%d", rand.Intn(30))
	}

	payload := map[string]interface{}{
		profitKeys[rand.Intn(len(profitKeys))]: 5 + rand.Float64()*60,
		"insurance_pay":                        rand.Float64() * 80,
		"patient_pay":                          rand.Float64() * 20,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Fatal(err)
	}

	prescriber := fmt.Sprintf("%s, %s", randomdata.LastName(), randomdata.FirstName(randomdata.RandomGender))
	if rand.Intn(20) == 0 {
		prescriber = "UNKNOWN"
	}

	dispensedAt := now.AddDate(0, 0, -rand.Intn(365))

	if _, err := db.Exec(`INSERT INTO claims
		(pharmacy_id, patient_id, drug_name, ndc, quantity, days_supply, bin, group_id,
			prescriber_name, payload, dispensed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pharmacyID, patientID, drug.name, drug.ndc, quantity, daysSupply, bin, group,
		prescriber, payloadJSON, dispensedAt); err != nil {
		log.Fatal(err)
	}
}
