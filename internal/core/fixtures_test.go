package core

import "time"

var sampleDate = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleTransactions() []Transaction {
	return []Transaction{
		{ID: "1", Description: "Initial Balance", Amount: 100, Category: "Income", Date: sampleDate},
		{ID: "2", Description: "Groceries", Amount: -45.75, Category: "Food", Date: sampleDate},
		{ID: "3", Description: "Salary", Amount: 2500, Category: "Income", Date: sampleDate},
		{ID: "4", Description: "Rent", Amount: -1200, Category: "Housing", Date: sampleDate},
		{ID: "5", Description: "Utilities", Amount: -150.50, Category: "Bills", Date: sampleDate},
	}
}
