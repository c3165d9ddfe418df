package monarch

const budgetsQuery = `query GetJointPlannedCashflow($startDate: Date!, $endDate: Date!) {
  budgetData(startMonth: $startDate, endMonth: $endDate) {
    monthlyAmountsByCategory {
      category { id }
      monthlyAmounts {
        month
        plannedCashFlowAmount
        actualAmount
      }
    }
  }
  categoryGroups {
    id
    name
    categories { id name }
  }
}`

const categoriesQuery = `query GetCategories {
  categories {
    id
    name
    isDisabled
    group { id name type }
  }
}`

const transactionsQuery = `query GetTransactionsList($offset: Int, $limit: Int, $filters: TransactionFilterInput, $orderBy: TransactionOrdering) {
  allTransactions(filters: $filters) {
    totalCount
    results(offset: $offset, limit: $limit, orderBy: $orderBy) {
      id
      amount
      pending
      date
      notes
      plaidName
      category { id name }
      merchant { name }
      account { displayName }
    }
  }
}`
